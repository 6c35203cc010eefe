package tests

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adi0301/item-lending/internal/adapter/handler"
	"github.com/adi0301/item-lending/internal/core/domain"
	"github.com/adi0301/item-lending/internal/core/service"
)

type testEnv struct {
	addr     string
	recorder *service.ActivityRecorder
	cleanup  func()
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	inv := service.NewInventoryService(domain.DefaultCatalog())
	recorder := service.NewActivityRecorder(256, nil)
	srv := handler.NewServer("127.0.0.1:0", handler.NewHandler(inv, recorder, nil), nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve()

	return &testEnv{
		addr:     srv.Addr().String(),
		recorder: recorder,
		cleanup: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		},
	}
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func connect(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(line string) string {
	c.t.Helper()
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		c.t.Fatalf("write %q: %v", line, err)
	}
	return c.readLine()
}

func (c *client) readLine() string {
	c.t.Helper()
	reply, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return strings.TrimSuffix(reply, "\n")
}

func (c *client) hello(user string) {
	c.t.Helper()
	if reply := c.send("HELLO " + user); reply != "OK HELLO" {
		c.t.Fatalf("hello: got %q", reply)
	}
}

func TestIntegration_FullLendingFlow(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	alice := connect(t, env.addr)

	// Commands before HELLO are rejected.
	if reply := alice.send("LIST"); reply != "ERR STATE not_authenticated" {
		t.Fatalf("pre-auth LIST: got %q", reply)
	}

	alice.hello("alice")

	// Fresh catalog: 15 items, all free.
	if reply := alice.send("LIST"); reply != "OK LIST 15" {
		t.Fatalf("LIST header: got %q", reply)
	}
	for i := 0; i < 15; i++ {
		line := alice.readLine()
		if !strings.HasSuffix(line, "FREE") {
			t.Errorf("item line %d: expected FREE, got %q", i+1, line)
		}
	}

	if reply := alice.send("BORROW 5"); reply != "OK BORROWED 5" {
		t.Fatalf("BORROW: got %q", reply)
	}

	// A second client observes the borrow.
	bob := connect(t, env.addr)
	bob.hello("bob")
	if reply := bob.send("BORROW 5"); reply != "ERR UNAVAILABLE borrowed_by=alice" {
		t.Fatalf("conflicting BORROW: got %q", reply)
	}
	if reply := bob.send("RETURN 5"); reply != "ERR PERMISSION not_owner" {
		t.Fatalf("foreign RETURN: got %q", reply)
	}

	if reply := alice.send("RETURN 5"); reply != "OK RETURNED 5" {
		t.Fatalf("RETURN: got %q", reply)
	}
	if reply := bob.send("BORROW 5"); reply != "OK BORROWED 5" {
		t.Fatalf("BORROW after return: got %q", reply)
	}

	if reply := alice.send("QUIT"); reply != "OK BYE" {
		t.Fatalf("QUIT: got %q", reply)
	}
}

func TestIntegration_ProtocolErrors(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	c := connect(t, env.addr)

	if reply := c.send("HELLO"); reply != "ERR PROTOCOL missing_username" {
		t.Errorf("HELLO without name: got %q", reply)
	}
	c.hello("carol")

	if reply := c.send("BORROW 99"); reply != "ERR NOT_FOUND item" {
		t.Errorf("unknown item: got %q", reply)
	}
	if reply := c.send("BORROW abc"); reply != "ERR PROTOCOL invalid_id" {
		t.Errorf("bad id: got %q", reply)
	}
	if reply := c.send("SNORKEL"); reply != "ERR PROTOCOL invalid_command" {
		t.Errorf("unknown verb: got %q", reply)
	}

	// The session is still usable after every rejection.
	if reply := c.send("BORROW 1"); reply != "OK BORROWED 1" {
		t.Errorf("borrow after errors: got %q", reply)
	}
}

func TestIntegration_WaitUnblocksAcrossConnections(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	alice := connect(t, env.addr)
	alice.hello("alice")
	if reply := alice.send("BORROW 1"); reply != "OK BORROWED 1" {
		t.Fatalf("BORROW: got %q", reply)
	}

	bob := connect(t, env.addr)
	bob.hello("bob")

	waitReply := make(chan string, 1)
	go func() {
		fmt.Fprintf(bob.conn, "WAIT 1\n")
		reply, err := bob.r.ReadString('\n')
		if err != nil {
			waitReply <- "read error: " + err.Error()
			return
		}
		waitReply <- strings.TrimSuffix(reply, "\n")
	}()

	// Bob must still be blocked before the return happens.
	select {
	case reply := <-waitReply:
		t.Fatalf("WAIT returned early: %q", reply)
	case <-time.After(200 * time.Millisecond):
	}

	if reply := alice.send("RETURN 1"); reply != "OK RETURNED 1" {
		t.Fatalf("RETURN: got %q", reply)
	}

	select {
	case reply := <-waitReply:
		if reply != "OK AVAILABLE 1" {
			t.Fatalf("WAIT: got %q", reply)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WAIT was not unblocked by RETURN")
	}

	// Wait success is not a reservation; bob still has to borrow.
	if reply := bob.send("BORROW 1"); reply != "OK BORROWED 1" {
		t.Fatalf("BORROW after WAIT: got %q", reply)
	}
}

func TestIntegration_SelfDeadlockOverWire(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	c := connect(t, env.addr)
	c.hello("alice")
	if reply := c.send("BORROW 2"); reply != "OK BORROWED 2" {
		t.Fatalf("BORROW: got %q", reply)
	}
	if reply := c.send("WAIT 2"); reply != "ERR DEADLOCK item" {
		t.Fatalf("self WAIT: got %q", reply)
	}
}

func TestIntegration_ConcurrentBorrowRace(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	totalClients := 20
	var successCount atomic.Int32
	var conflictCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalClients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			conn, err := net.Dial("tcp", env.addr)
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer conn.Close()
			r := bufio.NewReader(conn)

			fmt.Fprintf(conn, "HELLO racer-%d\n", id)
			if _, err := r.ReadString('\n'); err != nil {
				t.Errorf("hello read: %v", err)
				return
			}

			fmt.Fprintf(conn, "BORROW 7\n")
			reply, err := r.ReadString('\n')
			if err != nil {
				t.Errorf("borrow read: %v", err)
				return
			}
			switch {
			case strings.HasPrefix(reply, "OK BORROWED"):
				successCount.Add(1)
			case strings.HasPrefix(reply, "ERR UNAVAILABLE"):
				conflictCount.Add(1)
			default:
				t.Errorf("unexpected reply %q", reply)
			}
		}(i)
	}

	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 winner, got %d", successCount.Load())
	}
	if conflictCount.Load() != int32(totalClients-1) {
		t.Errorf("expected %d conflicts, got %d", totalClients-1, conflictCount.Load())
	}
}

func TestIntegration_ActivityEventsEmitted(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	c := connect(t, env.addr)
	c.hello("alice")
	c.send("BORROW 1")
	c.send("RETURN 1")
	c.send("QUIT")

	wantKinds := []domain.EventKind{
		domain.EventLogin,
		domain.EventBorrow,
		domain.EventReturn,
		domain.EventDisconnect,
	}
	for _, want := range wantKinds {
		select {
		case ev := <-env.recorder.Queue():
			if ev.Kind != want {
				t.Errorf("expected %s event, got %s", want, ev.Kind)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing %s event", want)
		}
	}
}
