package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/encodeous/weft/state"
)

// IPCGet sends a single command to the node listening on socket and returns its response
func IPCGet(socket string, command string) (string, error) {
	conn, err := net.DialTimeout("unix", socket, time.Second*5)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	_, err = rw.WriteString(command + "\n")
	if err != nil {
		return "", err
	}
	err = rw.Flush()
	if err != nil {
		return "", err
	}

	res, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSuffix(res, "\x00"), nil
}

// IpcServer answers inspect requests on the configured unix socket
type IpcServer struct {
	listener net.Listener
	wg       sync.WaitGroup
}

func (i *IpcServer) Init(s *state.State) error {
	if s.IpcSocket == "" {
		return nil
	}
	_ = os.Remove(s.IpcSocket)
	l, err := net.Listen("unix", s.IpcSocket)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.IpcSocket, err)
	}
	i.listener = l
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.Log.Warn("ipc accept failed", "error", err)
				}
				return
			}
			i.wg.Add(1)
			go func() {
				defer i.wg.Done()
				defer conn.Close()
				_ = conn.SetDeadline(time.Now().Add(time.Second * 10))
				rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
				err := HandleIPC(s.Env, rw)
				if err != nil {
					s.Log.Debug("ipc request failed", "error", err)
					_, _ = rw.WriteString("error: " + err.Error() + "\x00")
				}
				_ = rw.Flush()
			}()
		}
	}()
	return nil
}

func (i *IpcServer) Cleanup(s *state.State) error {
	if i.listener == nil {
		return nil
	}
	err := i.listener.Close()
	i.wg.Wait()
	return err
}

func HandleIPC(e *state.Env, rw *bufio.ReadWriter) error {
	line, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}
	// a non-nil error from the dispatched function stops the node, request errors are returned as values
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		switch fields[0] {
		case "inspect":
			return Inspect(s), nil
		case "route":
			if len(fields) < 2 || len(fields) > 3 {
				return fmt.Errorf("usage: route <destination> [source account]"), nil
			}
			var from state.AccountId
			if len(fields) == 3 {
				from = state.AccountId(fields[2])
			}
			return LookupRoute(s, state.Address(fields[1]), from), nil
		}
		return fmt.Errorf("unknown command %s", fields[0]), nil
	})
	if err != nil {
		return err
	}
	if err, ok := res.(error); ok {
		return err
	}
	_, err = rw.WriteString(res.(string) + "\x00")
	return err
}

// Inspect renders the routing table and the ledger of every account
func Inspect(s *state.State) string {
	r := Get[*Router](s)
	ledger := Get[*Ledger](s)
	accounts := Get[*Accounts](s)
	now := s.Clock.Now()

	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Node: %s (%s)\n", s.Id, s.OperatorAddress))

	sb.WriteString(fmt.Sprintf("\nRoute Table (epoch %d):\n", r.Table.Epoch()))
	routes := r.Table.Routes()
	if len(routes) == 0 {
		sb.WriteString(" (none)\n")
	}
	for _, route := range routes {
		sb.WriteString(fmt.Sprintf(" - %s via %s", route.Prefix, route.NextHop))
		if route.Source.String() != state.AllowAllSources {
			sb.WriteString(fmt.Sprintf(" src %s", route.Source))
		}
		if route.ExpiresAt != nil {
			sb.WriteString(fmt.Sprintf(" expires %.2fs", route.ExpiresAt.Sub(now).Seconds()))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nAccounts:\n")
	for _, acct := range accounts.Static.All() {
		if current, ok := accounts.Get(acct.Id); ok {
			acct = current
		}
		bal := ledger.Balance(acct)
		sb.WriteString(fmt.Sprintf(" - %s %s %s link=%s clearing=%d in-flight=%d available=%s receivable=%s\n",
			acct.Id, acct.Denomination(), acct.Relationship, acct.LinkType, bal.Clearing, bal.InFlight,
			formatLimit(bal.AvailableToSend()), formatLimit(bal.AvailableToReceive())))
	}
	sb.WriteString(fmt.Sprintf("\nReservations in flight: %d\n", ledger.InFlight()))
	return sb.String()
}

func formatLimit(v int64) string {
	if v == math.MaxInt64 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", v)
}

// LookupRoute explains how a packet to destination received on from would be routed
func LookupRoute(s *state.State, destination state.Address, from state.AccountId) string {
	r := Get[*Router](s)
	var src state.Address
	if from != "" {
		src = s.SourceAddress(from)
	}
	route, ok := r.Table.FindBestRoute(destination, src)
	if !ok {
		return fmt.Sprintf("%s is unreachable\n", destination)
	}
	if from != "" && route.NextHop == from {
		return fmt.Sprintf("%s routes back to %s via %s, packets from %s are rejected\n", destination, from, route.Prefix, from)
	}
	return fmt.Sprintf("%s via %s (prefix %s)\n", destination, route.NextHop, route.Prefix)
}
