// Command stress_test races concurrent clients against a running lending
// server and checks that exactly one of them wins the contended item.
package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	serverAddr   = "localhost:5555"
	itemID       = 1
	totalClients = 50
)

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(user string) (*client, error) {
	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return nil, err
	}
	c := &client{conn: conn, r: bufio.NewReader(conn)}
	reply, err := c.send("HELLO " + user)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply != "OK HELLO" {
		conn.Close()
		return nil, fmt.Errorf("hello: unexpected reply %q", reply)
	}
	return c, nil
}

func (c *client) send(line string) (string, error) {
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		return "", err
	}
	reply, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (c *client) close() {
	c.send("QUIT")
	c.conn.Close()
}

func main() {
	var successCount atomic.Int32
	var conflictCount atomic.Int32
	var errorCount atomic.Int32
	winners := make(chan string, totalClients)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalClients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			user := fmt.Sprintf("user-%d", id)
			c, err := dial(user)
			if err != nil {
				log.Printf("client %s: %v", user, err)
				errorCount.Add(1)
				return
			}
			defer c.close()

			reply, err := c.send(fmt.Sprintf("BORROW %d", itemID))
			if err != nil {
				log.Printf("client %s: %v", user, err)
				errorCount.Add(1)
				return
			}
			switch {
			case strings.HasPrefix(reply, "OK BORROWED"):
				successCount.Add(1)
				winners <- user
			case strings.HasPrefix(reply, "ERR UNAVAILABLE"):
				conflictCount.Add(1)
			default:
				log.Printf("client %s: unexpected reply %q", user, reply)
				errorCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)
	close(winners)

	success := successCount.Load()
	conflicts := conflictCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Clients:    %d\n", totalClients)
	fmt.Printf("Borrow Winners:   %d\n", success)
	fmt.Printf("Conflicts:        %d\n", conflicts)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == 1 && conflicts == int32(totalClients-1) {
		fmt.Println("PASS: exactly one client borrowed the item")
	} else {
		fmt.Printf("FAIL: expected 1 winner/%d conflicts, got %d/%d\n",
			totalClients-1, success, conflicts)
	}

	// Hand the item back so the test can be rerun.
	for winner := range winners {
		c, err := dial(winner)
		if err != nil {
			log.Fatalf("reconnect as winner %s: %v", winner, err)
		}
		reply, err := c.send(fmt.Sprintf("RETURN %d", itemID))
		c.close()
		if err != nil {
			log.Fatalf("return as %s: %v", winner, err)
		}
		if reply == fmt.Sprintf("OK RETURNED %d", itemID) {
			fmt.Printf("PASS: winner %s returned the item\n", winner)
		} else {
			fmt.Printf("FAIL: return reply %q\n", reply)
		}
	}
}
