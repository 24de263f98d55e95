package memcached

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"time"
)

const absoluteTTLThreshold = 30 * 24 * time.Hour

// Pool speaks the memcached text protocol to a fixed set of servers, one
// short-lived TCP connection per command. Keys are sharded by FNV-1a hash.
type Pool struct {
	addresses []string
	timeout   time.Duration
	dial      func(ctx context.Context, network, address string) (net.Conn, error)
}

func (p *Pool) pickAddress(key string) string {
	if len(p.addresses) == 1 {
		return p.addresses[0]
	}
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(key))
	return p.addresses[int(hash.Sum32()%uint32(len(p.addresses)))]
}

func (p *Pool) connect(ctx context.Context, address string) (net.Conn, *bufio.Reader, error) {
	conn, err := p.dial(ctx, "tcp", address)
	if err != nil {
		return nil, nil, err
	}
	deadline := time.Now().Add(p.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)
	return conn, bufio.NewReader(conn), nil
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// version asks address for its version; it doubles as a liveness probe.
func (p *Pool) version(ctx context.Context, address string) (string, error) {
	conn, reader, err := p.connect(ctx, address)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, "version\r\n"); err != nil {
		return "", err
	}
	line, err := readLine(reader)
	if err != nil {
		return "", err
	}
	version, ok := strings.CutPrefix(line, "VERSION ")
	if !ok {
		return "", fmt.Errorf("unexpected memcached version response: %s", line)
	}
	return version, nil
}

// getMulti fetches keys held by one server with a single get command.
func (p *Pool) getMulti(ctx context.Context, address string, keys []string) (map[string][]byte, error) {
	conn, reader, err := p.connect(ctx, address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, "get "+strings.Join(keys, " ")+"\r\n"); err != nil {
		return nil, err
	}

	values := make(map[string][]byte, len(keys))
	for {
		line, err := readLine(reader)
		if err != nil {
			return nil, err
		}
		if line == "END" {
			return values, nil
		}
		// VALUE <key> <flags> <bytes>
		parts := strings.Fields(line)
		if len(parts) != 4 || parts[0] != "VALUE" {
			return nil, fmt.Errorf("unexpected memcached response: %s", line)
		}
		size, err := strconv.Atoi(parts[3])
		if err != nil || size < 0 {
			return nil, fmt.Errorf("invalid memcached size: %s", parts[3])
		}
		payload := make([]byte, size+2) // include trailing CRLF
		if _, err := io.ReadFull(reader, payload); err != nil {
			return nil, err
		}
		values[parts[1]] = payload[:size]
	}
}

func (p *Pool) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	conn, reader, err := p.connect(ctx, p.pickAddress(key))
	if err != nil {
		return err
	}
	defer conn.Close()

	cmd := fmt.Sprintf("set %s 0 %d %d\r\n", key, ttlToSeconds(ttl), len(value))
	if _, err := io.WriteString(conn, cmd); err != nil {
		return err
	}
	if _, err := conn.Write(value); err != nil {
		return err
	}
	if _, err := io.WriteString(conn, "\r\n"); err != nil {
		return err
	}

	line, err := readLine(reader)
	if err != nil {
		return err
	}
	if line != "STORED" {
		return fmt.Errorf("memcached set failed: %s", line)
	}
	return nil
}

// delete removes key. A missing key is not an error.
func (p *Pool) delete(ctx context.Context, key string) error {
	conn, reader, err := p.connect(ctx, p.pickAddress(key))
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, "delete "+key+"\r\n"); err != nil {
		return err
	}
	line, err := readLine(reader)
	if err != nil {
		return err
	}
	switch line {
	case "DELETED", "NOT_FOUND":
		return nil
	default:
		return fmt.Errorf("unexpected memcached delete response: %s", line)
	}
}

func (p *Pool) flushAll(ctx context.Context, address string) error {
	conn, reader, err := p.connect(ctx, address)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, "flush_all\r\n"); err != nil {
		return err
	}
	line, err := readLine(reader)
	if err != nil {
		return err
	}
	if line != "OK" {
		return fmt.Errorf("unexpected memcached flush_all response: %s", line)
	}
	return nil
}

var errNoServers = errors.New("at least one memcached server is required")

func ttlToSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	if ttl > absoluteTTLThreshold {
		return int(time.Now().Add(ttl).Unix())
	}
	seconds := int(math.Ceil(ttl.Seconds()))
	if seconds <= 0 {
		return 1
	}
	return seconds
}
