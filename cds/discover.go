package cds

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/anacrolix/log"

	"github.com/anacrolix/cdsbrowse/cache"
	"github.com/anacrolix/cdsbrowse/explorer"
	"github.com/anacrolix/cdsbrowse/metrics"
	"github.com/anacrolix/cdsbrowse/ssdp"
	"github.com/anacrolix/cdsbrowse/upnp"
)

const SearchTarget = MediaServerDeviceType + "1"

// Finds media servers with SSDP and keeps a Registry up to date.
type Discoverer struct {
	Registry   *explorer.Registry
	HTTPClient *http.Client
	// Searched and listened on individually. If empty, the system's default
	// multicast interface is used.
	Interfaces []net.Interface
	MX         int
	// Passed on to the servers found, if non-zero.
	PageSize int

	// Descriptions by location, regenerated when the device's BOOTID
	// changes.
	servers *cache.Cache[string, *MediaServer, string]
	logger  log.Logger

	mu sync.Mutex
	// Location by UDN, for forgetting servers that say byebye.
	locations map[string]string
}

func NewDiscoverer(r *explorer.Registry, httpClient *http.Client) *Discoverer {
	return &Discoverer{
		Registry:   r,
		HTTPClient: httpClient,
		MX:         2,
		servers:    cache.New[string, *MediaServer, string](),
		logger:     log.Default.WithNames("cds", "discover"),
		locations:  make(map[string]string),
	}
}

func (me *Discoverer) interfaces() []*net.Interface {
	if len(me.Interfaces) == 0 {
		return []*net.Interface{nil}
	}
	ret := make([]*net.Interface, 0, len(me.Interfaces))
	for i := range me.Interfaces {
		ret = append(ret, &me.Interfaces[i])
	}
	return ret
}

func ifName(ifi *net.Interface) string {
	if ifi == nil {
		return "default"
	}
	return ifi.Name
}

// Runs f for each interface at once, returning the first error.
func (me *Discoverer) eachInterface(f func(*net.Interface) error) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, ifi := range me.interfaces() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(ifi); err != nil {
				me.logger.Levelf(log.Warning, "%s: %v", ifName(ifi), err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// Searches for media servers once, returning when replies stop being
// accepted.
func (me *Discoverer) Search(ctx context.Context) error {
	return me.eachInterface(func(ifi *net.Interface) error {
		s := ssdp.Searcher{
			Interface: ifi,
			Target:    SearchTarget,
			MX:        me.MX,
		}
		return s.Search(ctx, func(adv ssdp.Advertisement) {
			me.Handle(ctx, adv)
		})
	})
}

// Follows NOTIFY announcements until ctx is done.
func (me *Discoverer) Listen(ctx context.Context) error {
	return me.eachInterface(func(ifi *net.Interface) error {
		return ssdp.Listen(ctx, ifi, func(adv ssdp.Advertisement) {
			me.Handle(ctx, adv)
		})
	})
}

// Applies one advertisement to the registry.
func (me *Discoverer) Handle(ctx context.Context, adv ssdp.Advertisement) {
	metrics.SSDPResponses.Inc()
	udn := upnp.ParseUDN(adv.USN)
	if !adv.Alive() {
		me.forget(udn)
		return
	}
	if !strings.HasPrefix(adv.Target, MediaServerDeviceType) || adv.Location == "" {
		return
	}
	ms, err := me.servers.Get(adv.Location, adv.BootID, func() (*MediaServer, string, error) {
		ms, err := NewMediaServer(ctx, me.HTTPClient, adv.Location)
		if err == nil && me.PageSize != 0 {
			ms.PageSize = me.PageSize
		}
		return ms, adv.BootID, err
	})
	if err != nil {
		me.logger.Levelf(log.Warning, "%s: %v", adv.Location, err)
		return
	}
	me.mu.Lock()
	me.locations[ms.UDN()] = adv.Location
	me.mu.Unlock()
	s, added := me.Registry.Add(ms)
	if added || s.MediaServer() == explorer.MediaServer(ms) {
		return
	}
	// The device rebooted, and its tree may have changed.
	me.logger.Levelf(log.Debug, "%s has a new description", ms.UDN())
	me.Registry.Remove(ms.UDN())
	me.Registry.Add(ms)
}

func (me *Discoverer) forget(udn string) {
	me.mu.Lock()
	loc, ok := me.locations[udn]
	delete(me.locations, udn)
	me.mu.Unlock()
	if ok {
		me.servers.Delete(loc)
	}
	me.Registry.Remove(udn)
}
