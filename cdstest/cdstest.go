// Package cdstest provides an in-memory ContentDirectory server for tests.
package cdstest

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anacrolix/cdsbrowse/soap"
	"github.com/anacrolix/cdsbrowse/upnp"
	"github.com/anacrolix/cdsbrowse/upnpav"
)

const (
	RootDescPath      = "/rootDesc.xml"
	scpdPath          = "/scpd/ContentDirectory.xml"
	serviceControlURL = "/ctl"
	serviceType       = "urn:schemas-upnp-org:service:ContentDirectory:1"
)

// Serves a fixed tree of objects over UPnP. The zero value isn't usable;
// call New.
type Server struct {
	*httptest.Server
	UDN          string
	FriendlyName string

	mu       sync.Mutex
	children map[string][]interface{}
	raw      map[string]string
	errs     map[string]*upnp.Error
	destroy  bool
	browses  []string
	// Closed to release Browse calls held by Hold.
	hold chan struct{}
}

// Starts a server with an empty root container.
func New(friendlyName string) *Server {
	ret := &Server{
		UDN:          "uuid:" + uuid.NewString(),
		FriendlyName: friendlyName,
		children:     make(map[string][]interface{}),
		raw:          make(map[string]string),
		errs:         make(map[string]*upnp.Error),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(RootDescPath, ret.serveRootDesc)
	mux.HandleFunc(scpdPath, ret.serveSCPD)
	mux.HandleFunc(serviceControlURL, ret.serviceControlHandler)
	ret.Server = httptest.NewServer(mux)
	return ret
}

func (me *Server) Location() string {
	return me.URL + RootDescPath
}

// Appends upnpav.Items and upnpav.ContainerObjects to the children of parentID.
func (me *Server) Add(parentID string, objs ...interface{}) {
	me.mu.Lock()
	defer me.mu.Unlock()
	for _, o := range objs {
		switch o.(type) {
		case upnpav.Item, upnpav.ContainerObject:
		default:
			panic(fmt.Sprintf("unexpected object type %T", o))
		}
	}
	me.children[parentID] = append(me.children[parentID], objs...)
}

// Serves didl verbatim for BrowseDirectChildren of objectID.
func (me *Server) SetRaw(objectID, didl string) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.raw[objectID] = didl
}

// Makes actions on objectID fail with err.
func (me *Server) SetError(objectID string, err *upnp.Error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.errs[objectID] = err
}

// Whether the service advertises DestroyObject.
func (me *Server) SetDestroyObject(enabled bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.destroy = enabled
}

// Makes Browse calls block until the returned func is called, or the client
// goes away.
func (me *Server) Hold() (release func()) {
	me.mu.Lock()
	defer me.mu.Unlock()
	ch := make(chan struct{})
	me.hold = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			me.mu.Lock()
			if me.hold == ch {
				me.hold = nil
			}
			me.mu.Unlock()
			close(ch)
		})
	}
}

// The ObjectIDs of the Browse calls received so far.
func (me *Server) Browses() []string {
	me.mu.Lock()
	defer me.mu.Unlock()
	return append([]string(nil), me.browses...)
}

func (me *Server) Children(parentID string) []interface{} {
	me.mu.Lock()
	defer me.mu.Unlock()
	return append([]interface{}(nil), me.children[parentID]...)
}

func xmlMarshalOrPanic(value interface{}) []byte {
	ret, err := xml.MarshalIndent(value, "", "  ")
	if err != nil {
		panic(err)
	}
	return ret
}

func (me *Server) serveRootDesc(w http.ResponseWriter, r *http.Request) {
	body := xmlMarshalOrPanic(upnp.DeviceDesc{
		SpecVersion: upnp.SpecVersion{Major: 1, Minor: 0},
		Device: upnp.Device{
			DeviceType:   "urn:schemas-upnp-org:device:MediaServer:1",
			FriendlyName: me.FriendlyName,
			Manufacturer: "cdstest",
			ModelName:    "cdstest",
			UDN:          me.UDN,
			ServiceList: []upnp.Service{{
				ServiceType: serviceType,
				ServiceId:   "urn:upnp-org:serviceId:ContentDirectory",
				SCPDURL:     scpdPath,
				// Relative to the description's location.
				ControlURL: serviceControlURL[1:],
			}},
		},
	})
	w.Header().Set("content-type", `text/xml; charset="utf-8"`)
	w.Write(append([]byte(`<?xml version="1.0"?>`), body...))
}

func (me *Server) serveSCPD(w http.ResponseWriter, r *http.Request) {
	objectIDArg := upnp.Argument{Name: "ObjectID", Direction: "in", RelatedStateVar: "A_ARG_TYPE_ObjectID"}
	scpd := upnp.SCPD{
		SpecVersion: upnp.SpecVersion{Major: 1, Minor: 0},
		ActionList: []upnp.Action{
			{Name: "GetSystemUpdateID"},
			{Name: "Browse", Arguments: []upnp.Argument{objectIDArg}},
		},
		ServiceStateTable: []upnp.StateVariable{
			{SendEvents: "no", Name: "A_ARG_TYPE_ObjectID", DataType: "string"},
		},
	}
	me.mu.Lock()
	if me.destroy {
		scpd.ActionList = append(scpd.ActionList, upnp.Action{Name: "DestroyObject", Arguments: []upnp.Argument{objectIDArg}})
	}
	me.mu.Unlock()
	w.Header().Set("content-type", `text/xml; charset="utf-8"`)
	w.Write(xmlMarshalOrPanic(scpd))
}

// Marshal SOAP response arguments into a response XML snippet. Arguments
// are ordered as given.
func marshalSOAPResponse(sa upnp.SoapAction, args [][2]string) []byte {
	soapArgs := make([]soap.Arg, 0, len(args))
	for _, arg := range args {
		soapArgs = append(soapArgs, soap.NewArg(arg[0], arg[1]))
	}
	return []byte(fmt.Sprintf(`<u:%[1]sResponse xmlns:u="%[2]s">%[3]s</u:%[1]sResponse>`, sa.Action, sa.ServiceURN.String(), xmlMarshalOrPanic(soapArgs)))
}

// Handle a service control HTTP request.
func (me *Server) serviceControlHandler(w http.ResponseWriter, r *http.Request) {
	soapActionString := r.Header.Get("SOAPACTION")
	soapAction, ok := upnp.ParseActionHTTPHeader(soapActionString)
	if !ok {
		http.Error(w, fmt.Sprintf("invalid soapaction: %#v", soapActionString), http.StatusBadRequest)
		return
	}
	var env soap.Envelope
	if err := xml.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msg, err := env.Parse()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.Header().Set("Ext", "")
	soapRespXML, code := func() ([]byte, int) {
		respArgs, err := me.handle(r, soapAction.Action, msg.Args)
		if err != nil {
			return xmlMarshalOrPanic(soap.NewFault("UPnPError", xmlMarshalOrPanic(err))), 500
		}
		return marshalSOAPResponse(soapAction, respArgs), 200
	}()
	w.WriteHeader(code)
	w.Write(soap.WrapBody(soapRespXML))
}

func objectProps(o interface{}) *upnpav.ObjectProps {
	switch v := o.(type) {
	case upnpav.Item:
		return &v.ObjectProps
	case upnpav.ContainerObject:
		return &v.ObjectProps
	}
	panic(o)
}

// Finds an object and its position among its siblings. Must hold mu.
func (me *Server) find(objectID string) (parentID string, index int, ok bool) {
	for parentID, objs := range me.children {
		for i, o := range objs {
			if objectProps(o).ID == objectID {
				return parentID, i, true
			}
		}
	}
	return
}

func noSuchObject(objectID string) *upnp.Error {
	return &upnp.Error{
		Code: upnp.NoSuchObjectErrorCode,
		Desc: fmt.Sprintf("no such object: %q", objectID),
	}
}

func (me *Server) handle(r *http.Request, action string, args map[string]string) ([][2]string, *upnp.Error) {
	switch action {
	case "GetSystemUpdateID":
		return [][2]string{{"Id", "1"}}, nil
	case "Browse":
		return me.browse(r, args)
	case "DestroyObject":
		return me.destroyObject(args["ObjectID"])
	}
	return nil, &upnp.InvalidActionError
}

func (me *Server) browse(r *http.Request, args map[string]string) ([][2]string, *upnp.Error) {
	objectID := args["ObjectID"]
	me.mu.Lock()
	me.browses = append(me.browses, objectID)
	hold := me.hold
	me.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return nil, &upnp.Error{Code: upnp.ActionFailedErrorCode, Desc: "client went away"}
		}
	}
	startingIndex, err1 := strconv.ParseUint(args["StartingIndex"], 10, 32)
	requestedCount, err2 := strconv.ParseUint(args["RequestedCount"], 10, 32)
	if err1 != nil || err2 != nil {
		return nil, &upnp.ArgumentValueInvalidError
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	if err, ok := me.errs[objectID]; ok {
		return nil, err
	}
	updateID := fmt.Sprintf("%d", uint32(time.Now().Unix()))
	switch args["BrowseFlag"] {
	case "BrowseDirectChildren":
		if didl, ok := me.raw[objectID]; ok {
			return [][2]string{
				{"Result", didl},
				{"NumberReturned", "0"},
				{"TotalMatches", "0"},
				{"UpdateID", updateID},
			}, nil
		}
		if _, _, ok := me.find(objectID); !ok && objectID != upnpav.RootObjectID {
			return nil, noSuchObject(objectID)
		}
		objs := me.children[objectID]
		totalMatches := len(objs)
		if int(startingIndex) < len(objs) {
			objs = objs[startingIndex:]
		} else {
			objs = nil
		}
		if requestedCount != 0 && int(requestedCount) < len(objs) {
			objs = objs[:requestedCount]
		}
		result, err := upnpav.MarshalDIDLLite(objs...)
		if err != nil {
			panic(err)
		}
		return [][2]string{
			{"Result", result},
			{"NumberReturned", fmt.Sprint(len(objs))},
			{"TotalMatches", fmt.Sprint(totalMatches)},
			{"UpdateID", updateID},
		}, nil
	case "BrowseMetadata":
		parentID, i, ok := me.find(objectID)
		if !ok {
			return nil, noSuchObject(objectID)
		}
		result, err := upnpav.MarshalDIDLLite(me.children[parentID][i])
		if err != nil {
			panic(err)
		}
		return [][2]string{
			{"Result", result},
			{"NumberReturned", "1"},
			{"TotalMatches", "1"},
			{"UpdateID", updateID},
		}, nil
	}
	return nil, &upnp.Error{
		Code: upnp.ArgumentValueInvalidErrorCode,
		Desc: fmt.Sprint("unhandled browse flag:", args["BrowseFlag"]),
	}
}

func (me *Server) destroyObject(objectID string) ([][2]string, *upnp.Error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	if !me.destroy {
		return nil, &upnp.InvalidActionError
	}
	if err, ok := me.errs[objectID]; ok {
		return nil, err
	}
	parentID, i, ok := me.find(objectID)
	if !ok {
		return nil, noSuchObject(objectID)
	}
	if objectProps(me.children[parentID][i]).Restricted != 0 {
		return nil, &upnp.Error{
			Code: upnp.RestrictedObjectErrorCode,
			Desc: "restricted object",
		}
	}
	siblings := me.children[parentID]
	me.children[parentID] = append(siblings[:i:i], siblings[i+1:]...)
	delete(me.children, objectID)
	return nil, nil
}
