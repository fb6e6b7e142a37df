package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omochice/hybrid-chat/internal/session"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// Console reads commands and messages line by line and prints what
// happens in the joined rooms.
type Console struct {
	client Client
	now    func() time.Time

	mu      sync.Mutex
	out     io.Writer
	current string
	printed map[string]map[string]bool
}

// NewConsole creates a console writing to out. room is the room messages
// go to until the user joins another one.
func NewConsole(c Client, out io.Writer, room string) *Console {
	return &Console{
		client:  c,
		now:     time.Now,
		out:     out,
		current: room,
		printed: make(map[string]map[string]bool),
	}
}

// Help is printed on start and by /help.
const Help = `Commands:
  /join <room>    join a room and make it current
  /leave [room]   leave a room (default: current)
  /history        load older messages of the current room
  /who            list online users of the current room
  /rooms          list rooms
  quit            exit
Anything else is sent to the current room.`

// Run processes lines from in until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return errors.Wrap(err, "read input")
				default:
					return nil
				}
			}
			if quit := c.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Handle executes one input line. It reports whether the user asked to quit.
func (c *Console) Handle(ctx context.Context, line string) bool {
	text := strings.TrimSpace(line)
	if text == "" {
		return false
	}
	if text == "quit" || text == "exit" {
		return true
	}

	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	var err error
	switch cmd {
	case "/help":
		c.println(Help)
	case "/join":
		if arg == "" {
			c.println("usage: /join <room>")
			return false
		}
		if err = c.client.Join(ctx, arg); err == nil {
			c.setCurrent(arg)
		}
	case "/leave":
		if arg == "" {
			arg = c.room()
		}
		err = c.client.Leave(ctx, arg)
	case "/history":
		err = c.client.LoadHistory(ctx, c.room())
	case "/who":
		c.printUsers(c.room())
	case "/rooms":
		c.printRooms()
	default:
		if strings.HasPrefix(cmd, "/") {
			c.printf("unknown command %s, try /help\n", cmd)
			return false
		}
		_, err = c.client.Send(ctx, c.room(), text, protocol.KindText)
	}
	if err != nil {
		c.printf("error: %v\n", err)
	}
	return false
}

// Watch prints session events until the channel closes or ctx is done.
func (c *Console) Watch(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.show(ev)
		}
	}
}

func (c *Console) show(ev session.Event) {
	switch ev.Type {
	case session.EventConnection:
		c.printf("*** %s ***\n", ev.Conn)
	case session.EventJoined:
		c.printf("*** joined %s ***\n", ev.Room)
	case session.EventLeft:
		c.mu.Lock()
		delete(c.printed, ev.Room)
		c.mu.Unlock()
		c.printf("*** left %s ***\n", ev.Room)
	case session.EventMessages:
		c.printMessages(ev.Room)
	case session.EventPresence:
		log.Debug().Str("component", "console").Str("room_id", ev.Room).Msg("presence changed")
	case session.EventError:
		if ev.Room != "" {
			c.printf("error in %s: %v\n", ev.Room, ev.Err)
		} else {
			c.printf("error: %v\n", ev.Err)
		}
	}
}

// printMessages prints the confirmed messages of room not printed yet.
func (c *Console) printMessages(room string) {
	msgs := c.client.Messages(room)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	seen := c.printed[room]
	if seen == nil {
		seen = make(map[string]bool)
		c.printed[room] = seen
	}
	for _, m := range msgs {
		if m.Origin != protocol.OriginConfirmed || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		fmt.Fprintf(c.out, "[%s] #%s %s: %s\n", protocol.FormatTimestamp(m.CreatedAt, now), room, m.AuthorName, m.Body)
	}
}

func (c *Console) printUsers(room string) {
	users := c.client.OnlineUsers(room)
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	c.printf("online in %s: %s\n", room, strings.Join(names, ", "))
}

func (c *Console) printRooms() {
	rooms := c.client.Rooms()
	names := make([]string, 0, len(rooms))
	for name := range rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	current := c.room()
	for _, name := range names {
		marker := " "
		if name == current {
			marker = "*"
		}
		c.printf("%s %s (%s)\n", marker, name, rooms[name])
	}
}

func (c *Console) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Console) setCurrent(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = room
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) println(s string) {
	c.printf("%s\n", s)
}
