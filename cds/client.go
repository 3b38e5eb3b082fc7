// Package cds talks to the ContentDirectory service of UPnP media servers.
package cds

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/anacrolix/cdsbrowse/metrics"
	"github.com/anacrolix/cdsbrowse/soap"
	"github.com/anacrolix/cdsbrowse/upnp"
)

// Upper bound on a SOAP response body.
const maxResponseSize = 16 << 20

// Invokes actions on one service's control URL.
type Client struct {
	HTTPClient  *http.Client
	ControlURL  string
	ServiceType string
}

func (me *Client) httpClient() *http.Client {
	if me.HTTPClient == nil {
		return http.DefaultClient
	}
	return me.HTTPClient
}

// Calls action with the arguments in order, and returns the response
// arguments. A UPnP fault is returned as a *upnp.Error.
func (me *Client) Action(ctx context.Context, action string, args []soap.Arg) (ret map[string]string, err error) {
	started := time.Now()
	defer func() {
		metrics.ActionTotal.WithLabelValues(action, metrics.Status(err)).Inc()
		metrics.ActionDuration.WithLabelValues(action).Observe(time.Since(started).Seconds())
	}()
	urn, err := upnp.ParseServiceType(me.ServiceType)
	if err != nil {
		return
	}
	body, err := soap.MarshalRequest(me.ServiceType, action, args)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, me.ControlURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", upnp.SoapAction{ServiceURN: urn, Action: action}.String())
	resp, err := me.httpClient().Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	var env soap.Envelope
	d := xml.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	d.CharsetReader = charset.NewReaderLabel
	if err = d.Decode(&env); err != nil {
		if resp.StatusCode != http.StatusOK {
			err = fmt.Errorf("%s: %s", action, resp.Status)
			return
		}
		err = fmt.Errorf("decoding %s response: %w", action, err)
		return
	}
	msg, err := env.Parse()
	if err != nil {
		if fault, ok := err.(*soap.Fault); ok {
			err = faultError(fault)
		}
		return
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%s: %s", action, resp.Status)
		return
	}
	if msg.Action != action+"Response" {
		err = fmt.Errorf("unexpected response element %q to %s", msg.Action, action)
		return
	}
	ret = msg.Args
	return
}

// The UPnPError carried in the fault's detail, or the fault itself.
func faultError(fault *soap.Fault) error {
	var upnpErr upnp.Error
	if err := xml.Unmarshal(fault.Detail.Data, &upnpErr); err != nil {
		return fault
	}
	return &upnpErr
}

type BrowseFlag string

const (
	BrowseDirectChildren BrowseFlag = "BrowseDirectChildren"
	BrowseMetadata       BrowseFlag = "BrowseMetadata"
)

type BrowseArgs struct {
	ObjectID       string
	BrowseFlag     BrowseFlag
	Filter         string
	StartingIndex  uint
	RequestedCount uint
	SortCriteria   string
}

type BrowseResult struct {
	// DIDL-Lite
	Result         string
	NumberReturned uint
	TotalMatches   uint
	UpdateID       uint
}

func parseUint(args map[string]string, name string) (uint, error) {
	s, ok := args[name]
	if !ok {
		return 0, fmt.Errorf("missing %s", name)
	}
	i, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad %s: %w", name, err)
	}
	return uint(i), nil
}

func (me *Client) Browse(ctx context.Context, args BrowseArgs) (ret BrowseResult, err error) {
	filter := args.Filter
	if filter == "" {
		filter = "*"
	}
	resp, err := me.Action(ctx, "Browse", []soap.Arg{
		soap.NewArg("ObjectID", args.ObjectID),
		soap.NewArg("BrowseFlag", string(args.BrowseFlag)),
		soap.NewArg("Filter", filter),
		soap.NewArg("StartingIndex", strconv.FormatUint(uint64(args.StartingIndex), 10)),
		soap.NewArg("RequestedCount", strconv.FormatUint(uint64(args.RequestedCount), 10)),
		soap.NewArg("SortCriteria", args.SortCriteria),
	})
	if err != nil {
		return
	}
	var ok bool
	if ret.Result, ok = resp["Result"]; !ok {
		err = fmt.Errorf("missing Result")
		return
	}
	if ret.NumberReturned, err = parseUint(resp, "NumberReturned"); err != nil {
		return
	}
	if ret.TotalMatches, err = parseUint(resp, "TotalMatches"); err != nil {
		return
	}
	// Some servers leave UpdateID out.
	ret.UpdateID, _ = parseUint(resp, "UpdateID")
	return
}

func (me *Client) DestroyObject(ctx context.Context, objectID string) error {
	_, err := me.Action(ctx, "DestroyObject", []soap.Arg{
		soap.NewArg("ObjectID", objectID),
	})
	return err
}
