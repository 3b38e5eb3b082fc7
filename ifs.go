package main

import (
	"fmt"
	"io"
	"net"
)

func printInterfaces(w io.Writer) error {
	ifs, err := net.Interfaces()
	if err != nil {
		return err
	}
	for _, if_ := range ifs {
		fmt.Fprintln(w, if_)
		addrs, err := if_.Addrs()
		if err != nil {
			return err
		}
		for _, addr := range addrs {
			fmt.Fprintf(w, "\t%s\n", addr)
		}
		mcastAddrs, err := if_.MulticastAddrs()
		if err != nil {
			return err
		}
		for _, addr := range mcastAddrs {
			fmt.Fprintf(w, "\t%s\n", addr)
		}
	}
	return nil
}

func lookupInterfaces(names []string) (ret []net.Interface, err error) {
	for _, name := range names {
		var ifi *net.Interface
		ifi, err = net.InterfaceByName(name)
		if err != nil {
			return
		}
		ret = append(ret, *ifi)
	}
	return
}
