package target

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/internal/debug"
)

// mDNS identity advertised by discovery-aware inference servers.
const (
	ServiceType = "_llmws._tcp"
	mdnsDomain  = "local"

	// DefaultDiscoverTimeout bounds one browse pass.
	DefaultDiscoverTimeout = 2 * time.Second
)

// Discoverer browses for inference servers and returns them as resolver
// entries. Implementations must be best-effort: an empty result is normal.
type Discoverer func(ctx context.Context, timeout time.Duration) []config.ServerEntry

// Discover browses the local network for `_llmws._tcp` services. Capability
// tags come from TXT fields: a `caps=a,b` field or bare tag fields. Results
// are sorted by URL so repeated browses produce a stable candidate order.
func Discover(ctx context.Context, timeout time.Duration) []config.ServerEntry {
	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remain := time.Until(deadline); remain < timeout {
			timeout = remain
		}
	}
	if timeout <= 0 || ctx.Err() != nil {
		return nil
	}

	ch := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})
	var found []config.ServerEntry

	go func() {
		defer close(done)
		for e := range ch {
			if entry, ok := serviceToEntry(e); ok {
				found = append(found, entry)
			}
		}
	}()

	params := &mdns.QueryParam{
		Service:     ServiceType,
		Domain:      mdnsDomain,
		Timeout:     timeout,
		Entries:     ch,
		DisableIPv6: true,
	}
	if err := mdns.Query(params); err != nil {
		debug.Logf("target", "mdns query failed: %v", err)
	}
	close(ch)
	<-done

	sort.Slice(found, func(i, j int) bool { return found[i].URL < found[j].URL })
	debug.Logf("target", "mdns discovered %d endpoint(s)", len(found))
	return found
}

// serviceToEntry converts one mDNS answer into a resolver entry.
func serviceToEntry(e *mdns.ServiceEntry) (config.ServerEntry, bool) {
	if e == nil || e.Port <= 0 {
		return config.ServerEntry{}, false
	}

	host := hostFor(e)
	if host == "" {
		return config.ServerEntry{}, false
	}

	return config.ServerEntry{
		URL:          fmt.Sprintf("ws://%s:%d", host, e.Port),
		Capabilities: capsFromTXT(e.InfoFields),
	}, true
}

func hostFor(e *mdns.ServiceEntry) string {
	if e.AddrV4 != nil {
		return e.AddrV4.String()
	}
	if e.AddrV6 != nil {
		return "[" + e.AddrV6.String() + "]"
	}
	host := strings.TrimSuffix(strings.TrimSpace(e.Host), ".")
	if host == "" {
		return ""
	}
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		return "[" + host + "]"
	}
	return host
}

// capsFromTXT extracts capability tags from TXT fields. A `caps=` field
// carries a comma list; fields without `=` are taken as bare tags; other
// key=value fields are ignored.
func capsFromTXT(fields []string) []string {
	var caps []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if list, ok := strings.CutPrefix(f, "caps="); ok {
			for _, c := range strings.Split(list, ",") {
				if c = strings.TrimSpace(c); c != "" {
					caps = append(caps, c)
				}
			}
			continue
		}
		if !strings.Contains(f, "=") {
			caps = append(caps, f)
		}
	}
	return caps
}
