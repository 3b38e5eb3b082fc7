// Package shell is an interactive browser for the servers in a Registry.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/anacrolix/log"
	"github.com/chzyer/readline"

	"github.com/anacrolix/cdsbrowse/explorer"
	"github.com/anacrolix/cdsbrowse/ffmpeg"
	"github.com/anacrolix/cdsbrowse/upnpav"
)

// Returned by Exec for quit.
var ErrQuit = errors.New("quit")

type Shell struct {
	Registry *explorer.Registry
	// Defaults to ffmpeg.Probe.
	Probe func(url string) (ffmpeg.Result, error)

	out     io.Writer
	server  *explorer.Server
	cwd     *explorer.Entry
	listing []*explorer.Entry
	// Servers as last listed, for use by number.
	servers []*explorer.Server
}

func New(r *explorer.Registry, out io.Writer) *Shell {
	return &Shell{
		Registry: r,
		Probe:    ffmpeg.Probe,
		out:      out,
	}
}

func (me *Shell) printf(format string, a ...interface{}) {
	fmt.Fprintf(me.out, format, a...)
}

func (me *Shell) Prompt() string {
	if me.server == nil {
		return "cdsbrowse> "
	}
	return fmt.Sprintf("%s:%s> ", me.server.Name(), me.pwd())
}

func (me *Shell) pwd() string {
	var names []string
	for e := me.cwd; e != nil && !e.IsRoot(); e = e.Parent() {
		names = append(names, e.Name())
	}
	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteString("/")
		b.WriteString(names[i])
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("servers"),
		readline.PcItem("use"),
		readline.PcItem("ls"),
		readline.PcItem("cd"),
		readline.PcItem("pwd"),
		readline.PcItem("refresh"),
		readline.PcItem("play",
			readline.PcItem("video"),
			readline.PcItem("audio"),
			readline.PcItem("image"),
		),
		readline.PcItem("info"),
		readline.PcItem("probe"),
		readline.PcItem("rm"),
		readline.PcItem("quit"),
	)
}

// Reads commands from the terminal until quit, EOF or ctx is done.
func (me *Shell) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          me.Prompt(),
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	me.out = rl.Stdout()
	me.Registry.OnChange(func(ev explorer.Event) {
		fmt.Fprintf(rl.Stdout(), "%v: %s\n", ev.Type, ev.Server.Name())
	})
	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()
	me.help()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return ctx.Err()
		}
		err = me.Exec(ctx, line)
		if err == ErrQuit {
			return nil
		}
		if err != nil {
			fmt.Fprintf(rl.Stdout(), "error: %v\n", err)
		}
		rl.SetPrompt(me.Prompt())
	}
}

// Runs a single command line.
func (me *Shell) Exec(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	switch cmd {
	case "help", "?":
		me.help()
		return nil
	case "servers":
		return me.cmdServers()
	case "use":
		return me.cmdUse(args)
	case "quit", "exit", "q":
		return ErrQuit
	}
	if me.server == nil {
		return errors.New("no server selected, see servers and use")
	}
	switch cmd {
	case "ls":
		return me.cmdLs(ctx, false)
	case "refresh":
		return me.cmdLs(ctx, true)
	case "cd":
		return me.cmdCd(args)
	case "pwd":
		me.printf("%s\n", me.pwd())
		return nil
	case "play":
		return me.cmdPlay(ctx, args)
	case "info":
		return me.cmdInfo(args)
	case "probe":
		return me.cmdProbe(args)
	case "rm":
		return me.cmdRm(ctx, args)
	}
	return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
}

func (me *Shell) help() {
	me.printf(`Commands:
  servers          list known servers
  use <n|udn>      browse a server
  ls               list the current container
  refresh          list, bypassing the cache
  cd <n|..|/>      enter a listed container
  pwd              print the current path
  play <type>      list the current container's video, audio or image items
  info <n>         show every property of a listed entry
  probe <n>        probe a listed item's first resource with ffprobe
  rm <n>           destroy a listed entry on the server
  quit
`)
}

func (me *Shell) cmdServers() error {
	me.servers = me.Registry.Servers()
	if len(me.servers) == 0 {
		me.printf("no servers found yet\n")
		return nil
	}
	tw := tabwriter.NewWriter(me.out, 0, 4, 2, ' ', 0)
	for i, s := range me.servers {
		mark := " "
		if s == me.server {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s%d\t%s\t%s\n", mark, i+1, s.Name(), s.UDN())
	}
	return tw.Flush()
}

func (me *Shell) cmdUse(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: use <n|udn>")
	}
	s, ok := me.Registry.Get(args[0])
	if !ok {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(me.servers) {
			return fmt.Errorf("no server %q", args[0])
		}
		s = me.servers[n-1]
	}
	me.server = s
	me.cwd = s.Root()
	me.listing = nil
	return nil
}

func (me *Shell) list(entries []*explorer.Entry) error {
	tw := tabwriter.NewWriter(me.out, 0, 4, 2, ' ', 0)
	for i, e := range entries {
		kind := e.Type().String()
		if e.IsContainer() {
			kind = "dir"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, kind, e.Name())
	}
	return tw.Flush()
}

func (me *Shell) cmdLs(ctx context.Context, refresh bool) error {
	entries, err := me.cwd.ReadEntries(refresh).Collect(ctx)
	me.listing = entries
	if lerr := me.list(entries); lerr != nil {
		return lerr
	}
	return err
}

// Resolves a number from the last listing.
func (me *Shell) listed(args []string) (*explorer.Entry, error) {
	if len(args) != 1 {
		return nil, errors.New("expected an entry number")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(me.listing) {
		return nil, fmt.Errorf("no entry %q in the last listing", args[0])
	}
	return me.listing[n-1], nil
}

func (me *Shell) cmdCd(args []string) error {
	if len(args) == 1 {
		switch args[0] {
		case "/":
			me.cwd = me.server.Root()
			me.listing = nil
			return nil
		case "..":
			if !me.cwd.IsRoot() {
				me.cwd = me.cwd.Parent()
			}
			me.listing = nil
			return nil
		}
	}
	e, err := me.listed(args)
	if err != nil {
		return err
	}
	if !e.IsContainer() {
		return fmt.Errorf("%s is not a container", e.Name())
	}
	me.cwd = e
	me.listing = nil
	return nil
}

func (me *Shell) cmdPlay(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: play <video|audio|image>")
	}
	t, err := upnpav.ParseContentType(args[0])
	if err != nil {
		return err
	}
	pl := me.cwd.CreatePlayList(t)
	c := pl.Cursor()
	var n int
	for c.Next(ctx) {
		e := c.Value()
		n++
		u, _ := e.Object().Value(upnpav.Res)
		me.printf("%d\t%s\t%s\n", n, e.Name(), strings.TrimSpace(u))
	}
	return c.Err()
}

func (me *Shell) cmdInfo(args []string) error {
	e, err := me.listed(args)
	if err != nil {
		return err
	}
	o := e.Object()
	me.printf("id: %s\nparent: %s\nclass: %s\ntype: %v\ndeletable: %v\n", o.ObjectID(), o.ParentID(), o.UpnpClass(), o.Type(), e.IsDeletable())
	if d, ok := upnpav.ResourceDuration(o, 0); ok {
		me.printf("duration: %v\n", d)
	}
	if o.HasProtectedResource() {
		me.printf("protected: true\n")
	}
	me.printf("%s\n", o.Dump())
	return nil
}

func (me *Shell) cmdProbe(args []string) error {
	e, err := me.listed(args)
	if err != nil {
		return err
	}
	u, ok := e.Object().Value(upnpav.Res)
	if !ok || strings.TrimSpace(u) == "" {
		return ffmpeg.ErrNoResource
	}
	res, err := me.Probe(strings.TrimSpace(u))
	if err != nil {
		return err
	}
	me.printf("duration: %s\nbitrate: %d\nresolution: %s\nformat: %s\nstreams: %d\n",
		res.NPTDuration(), res.Bitrate, res.Resolution, res.FormatName, res.Streams)
	return nil
}

func (me *Shell) cmdRm(ctx context.Context, args []string) error {
	e, err := me.listed(args)
	if err != nil {
		return err
	}
	fut := e.Delete(ctx)
	select {
	case <-fut.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := fut.Result(); err != nil {
		return err
	}
	log.Default.WithNames("shell").Printf("destroyed %q on %v", e.Object().ObjectID(), me.server)
	me.listing = nil
	me.printf("removed %s\n", e.Name())
	return nil
}
