package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/anacrolix/log"
	"golang.org/x/net/ipv4"
)

// Finds the first IPv4 address of the interface, to bind searches to.
func interfaceIPv4(ifi *net.Interface) (net.IP, error) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		var ip net.IP
		switch val := addr.(type) {
		case *net.IPNet:
			ip = val.IP
		case *net.IPAddr:
			ip = val.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("interface %s has no IPv4 address", ifi.Name)
}

// Multicasts M-SEARCH requests and collects the replies.
type Searcher struct {
	// If nil, the system picks the interface.
	Interface *net.Interface
	Target    string
	// Seconds devices may wait before replying.
	MX int
}

func (me *Searcher) listenAddr() (*net.UDPAddr, error) {
	if me.Interface == nil {
		return &net.UDPAddr{IP: net.IPv4zero}, nil
	}
	ip, err := interfaceIPv4(me.Interface)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ip}, nil
}

// Sends a search and calls fn with each valid reply, until MX seconds (plus
// a grace second) pass or ctx is done.
func (me *Searcher) Search(ctx context.Context, fn func(Advertisement)) error {
	logger := log.Default.WithNames("ssdp", "search")
	mx := me.MX
	if mx < 1 {
		mx = 1
	}
	laddr, err := me.listenAddr()
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastTTL(2); err != nil {
		logger.Levelf(log.Warning, "setting multicast ttl: %v", err)
	}
	if me.Interface != nil {
		if err := p.SetMulticastInterface(me.Interface); err != nil {
			return err
		}
	}
	deadline := time.Now().Add(time.Duration(mx+1) * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.SetReadDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		p.SetReadDeadline(time.Now())
	})
	defer stop()
	if _, err := p.WriteTo(MakeSearchRequest(me.Target, mx), nil, NetAddr); err != nil {
		return err
	}
	buf := make([]byte, 0x10000)
	for {
		n, _, src, err := p.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return ctx.Err()
			}
			return err
		}
		adv, err := ParseResponse(buf[:n])
		if err != nil {
			logger.Levelf(log.Debug, "bad search response from %v: %v", src, err)
			continue
		}
		adv.From = src
		fn(adv)
	}
}

// Receives NOTIFY messages on ifi, or the default multicast interface if
// it's nil, until ctx is done.
func Listen(ctx context.Context, ifi *net.Interface, fn func(Advertisement)) error {
	logger := log.Default.WithNames("ssdp", "listen")
	conn, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", NetAddr.Port))
	if err != nil {
		return err
	}
	defer conn.Close()
	p := ipv4.NewPacketConn(conn)
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: NetAddr.IP}); err != nil {
		return err
	}
	defer p.LeaveGroup(ifi, &net.UDPAddr{IP: NetAddr.IP})
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	buf := make([]byte, 0x10000)
	for {
		n, _, src, err := p.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		adv, err := ParseNotify(buf[:n])
		if err != nil {
			// M-SEARCHes from other control points arrive here too.
			logger.Levelf(log.Debug, "ignoring message from %v: %v", src, err)
			continue
		}
		adv.From = src
		fn(adv)
	}
}
