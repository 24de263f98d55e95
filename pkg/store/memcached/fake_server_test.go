package memcached

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

// fakeCluster serves the memcached text protocol over in-memory pipes, one
// item map per server address.
type fakeCluster struct {
	mu      sync.Mutex
	servers map[string]map[string][]byte
	down    map[string]bool
	failSet map[string]bool
	ttls    map[string]int
	flushes int
}

func newFakeCluster(addresses ...string) *fakeCluster {
	c := &fakeCluster{
		servers: make(map[string]map[string][]byte),
		down:    make(map[string]bool),
		failSet: make(map[string]bool),
		ttls:    make(map[string]int),
	}
	for _, address := range addresses {
		c.servers[address] = make(map[string][]byte)
	}
	return c
}

func (c *fakeCluster) dial(_ context.Context, _, address string) (net.Conn, error) {
	c.mu.Lock()
	_, known := c.servers[address]
	down := c.down[address]
	c.mu.Unlock()
	if !known || down {
		return nil, fmt.Errorf("dial tcp %s: connection refused", address)
	}

	client, server := net.Pipe()
	go c.serve(address, server)
	return client, nil
}

func (c *fakeCluster) setDown(address string, down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down[address] = down
}

func (c *fakeCluster) items(address string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.servers[address])
}

func (c *fakeCluster) ttl(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttls[key]
}

func (c *fakeCluster) serve(address string, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return
	}

	c.mu.Lock()
	items := c.servers[address]
	c.mu.Unlock()

	switch parts[0] {
	case "version":
		_, _ = io.WriteString(conn, "VERSION 1.6.29\r\n")
	case "get":
		var b strings.Builder
		c.mu.Lock()
		for _, key := range parts[1:] {
			if value, ok := items[key]; ok {
				fmt.Fprintf(&b, "VALUE %s 0 %d\r\n%s\r\n", key, len(value), value)
			}
		}
		c.mu.Unlock()
		b.WriteString("END\r\n")
		_, _ = io.WriteString(conn, b.String())
	case "set":
		size, _ := strconv.Atoi(parts[4])
		ttl, _ := strconv.Atoi(parts[3])
		payload := make([]byte, size+2)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return
		}
		c.mu.Lock()
		failing := c.failSet[parts[1]]
		if !failing {
			items[parts[1]] = payload[:size]
			c.ttls[parts[1]] = ttl
		}
		c.mu.Unlock()
		if failing {
			_, _ = io.WriteString(conn, "SERVER_ERROR out of memory storing object\r\n")
			return
		}
		_, _ = io.WriteString(conn, "STORED\r\n")
	case "delete":
		c.mu.Lock()
		_, ok := items[parts[1]]
		delete(items, parts[1])
		c.mu.Unlock()
		if ok {
			_, _ = io.WriteString(conn, "DELETED\r\n")
		} else {
			_, _ = io.WriteString(conn, "NOT_FOUND\r\n")
		}
	case "flush_all":
		c.mu.Lock()
		clear(items)
		c.flushes++
		c.mu.Unlock()
		_, _ = io.WriteString(conn, "OK\r\n")
	default:
		_, _ = io.WriteString(conn, "ERROR\r\n")
	}
}
