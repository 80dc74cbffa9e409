// Good-peer cache, §4.H.
//
// Plain-text, one record per line, tolerant re-parse at startup,
// generalized to the sticky set. Pubkeys are rendered in base58.
package core

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
	log "github.com/sirupsen/logrus"
)

var cacheLogger = log.New()

func SetCacheLogger(l *log.Logger) { cacheLogger = l }

// WriteGoodPeerCache serializes the current sticky set as
// "base58(pubkey)/dotted-ip/decimal-port" lines to path, truncating any
// existing contents, §4.H. Run on the 60-second CacheWritePeriod tick.
func WriteGoodPeerCache(path string, table *ActivePeerTable, sticky []Pubkey) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open good-peer cache: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, pk := range sticky {
		entry, ok := table.Get(pk)
		if !ok {
			continue
		}
		ip := entry.ServeAddr.IP
		line := fmt.Sprintf("%s/%d.%d.%d.%d/%d\n",
			base58.Encode(pk[:]), ip[0], ip[1], ip[2], ip[3], entry.ServeAddr.Port)
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("write good-peer cache: %w", err)
		}
	}
	return w.Flush()
}

// ReadGoodPeerCache parses a cache file written by WriteGoodPeerCache.
// Malformed lines are skipped with a warning rather than failing the whole
// read, §4.H.
func ReadGoodPeerCache(path string) ([]ContactInfo, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open good-peer cache: %w", err)
	}
	defer f.Close()

	var out []ContactInfo
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ci, err := parseGoodPeerLine(line)
		if err != nil {
			cacheLogger.WithError(err).Warnf("skipping malformed good-peer cache line %d", lineNo)
			continue
		}
		out = append(out, ci)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return out, fmt.Errorf("read good-peer cache: %w", err)
	}
	return out, nil
}

func parseGoodPeerLine(line string) (ContactInfo, error) {
	parts := strings.Split(line, "/")
	if len(parts) != 3 {
		return ContactInfo{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}
	pkBytes, err := base58.Decode(parts[0])
	if err != nil || len(pkBytes) != 32 {
		return ContactInfo{}, fmt.Errorf("bad pubkey field: %w", err)
	}
	var octets [4]byte
	if n, err := fmt.Sscanf(parts[1], "%d.%d.%d.%d", &octets[0], &octets[1], &octets[2], &octets[3]); err != nil || n != 4 {
		return ContactInfo{}, fmt.Errorf("bad ip field %q", parts[1])
	}
	port, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return ContactInfo{}, fmt.Errorf("bad port field %q: %w", parts[2], err)
	}

	var ci ContactInfo
	copy(ci.Pubkey[:], pkBytes)
	ci.Serve = Endpoint{IP: octets, Port: uint16(port)}
	return ci, nil
}
