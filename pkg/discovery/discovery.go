// Package discovery finds lanpeek hosts on the local network. It combines
// an mDNS query for the lanpeek service name with a rate-limited TCP probe
// of the local /24. Discovery is stateless: it holds no session state and
// is independent of the signaling core.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pion/mdns"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/quyphuc2111/lanpeek/pkg/config"
)

// Host is one discovered machine.
type Host struct {
	Addr     string // IPv4 address
	Hostname string // resolved name, if any
	Source   string // "mdns" or "tcp"
}

const probeConcurrency = 64

// Scanner probes the local network for hosts.
type Scanner struct {
	cfg *config.Config
	log *zap.Logger
}

// NewScanner creates a scanner with the given configuration.
func NewScanner(cfg *config.Config, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{cfg: cfg, log: log}
}

// Scan runs both discovery mechanisms and returns the merged result,
// deduplicated by address and sorted by the last octet.
func (s *Scanner) Scan(ctx context.Context) ([]Host, error) {
	found := make(map[string]Host)
	var mu sync.Mutex
	add := func(h Host) {
		mu.Lock()
		defer mu.Unlock()
		if _, seen := found[h.Addr]; !seen {
			found[h.Addr] = h
		}
	}

	// mDNS answers identify lanpeek hosts directly and win over a bare
	// TCP hit for the same address, so it runs first.
	if h, err := s.queryMDNS(ctx); err == nil {
		add(h)
	} else {
		s.log.Debug("mdns query found nothing", zap.Error(err))
	}

	if err := s.probeSubnet(ctx, add); err != nil {
		return nil, err
	}

	hosts := make([]Host, 0, len(found))
	for _, h := range found {
		hosts = append(hosts, h)
	}
	sortByLastOctet(hosts)
	return hosts, nil
}

// queryMDNS asks the multicast group for the configured service name.
func (s *Scanner) queryMDNS(ctx context.Context) (Host, error) {
	conn, err := openMDNS(nil)
	if err != nil {
		return Host{}, err
	}
	defer conn.Close()

	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.Discovery.MDNSTimeout)
	defer cancel()

	_, src, err := conn.Query(queryCtx, s.cfg.Discovery.ServiceName)
	if err != nil {
		return Host{}, err
	}

	addr := src.String()
	if host, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
		addr = host
	}
	if ip := net.ParseIP(addr); ip != nil {
		addr = ip.String()
	}
	return Host{
		Addr:     addr,
		Hostname: strings.TrimSuffix(s.cfg.Discovery.ServiceName, ".local"),
		Source:   "mdns",
	}, nil
}

// probeSubnet tries TCP connections to every other address in the local
// /24, pacing connection attempts with a rate limiter so the scan does
// not flood the network.
func (s *Scanner) probeSubnet(ctx context.Context, add func(Host)) error {
	localIP, err := LocalIP()
	if err != nil {
		return fmt.Errorf("determine local ip: %w", err)
	}

	octets := strings.Split(localIP, ".")
	if len(octets) != 4 {
		return fmt.Errorf("unexpected local ip %q", localIP)
	}
	subnet := strings.Join(octets[:3], ".")

	limiter := rate.NewLimiter(rate.Limit(s.cfg.Discovery.ProbesPerSecond), 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)

	for i := 1; i <= 254; i++ {
		addr := fmt.Sprintf("%s.%d", subnet, i)
		if addr == localIP {
			continue
		}
		g.Go(func() error {
			for _, port := range s.cfg.Discovery.ProbePorts {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				if probeTCP(addr, port, s.cfg.Discovery.ProbeTimeout) {
					add(Host{Addr: addr, Hostname: lookupName(addr), Source: "tcp"})
					return nil
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// probeTCP reports whether addr accepts a connection on port.
func probeTCP(addr string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// lookupName does a best-effort reverse lookup.
func lookupName(addr string) string {
	names, err := net.LookupAddr(addr)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

func sortByLastOctet(hosts []Host) {
	sort.Slice(hosts, func(i, j int) bool {
		return lastOctet(hosts[i].Addr) < lastOctet(hosts[j].Addr)
	})
}

func lastOctet(addr string) int {
	parts := strings.Split(addr, ".")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0
	}
	return n
}

// Announcer answers mDNS queries for the lanpeek service name so scanners
// on the same network can find this machine.
type Announcer struct {
	conn *mdns.Conn

	once     sync.Once
	done     chan struct{}
	closeErr error
}

// Announce registers the service name on the multicast group. The
// announcer stops when ctx is cancelled or Close is called, whichever
// comes first.
func Announce(ctx context.Context, serviceName string) (*Announcer, error) {
	conn, err := openMDNS([]string{serviceName})
	if err != nil {
		return nil, fmt.Errorf("announce %s: %w", serviceName, err)
	}
	a := &Announcer{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			a.Close()
		case <-a.done:
		}
	}()
	return a, nil
}

// Close stops answering queries. Safe to call more than once.
func (a *Announcer) Close() error {
	a.once.Do(func() {
		a.closeErr = a.conn.Close()
		close(a.done)
	})
	return a.closeErr
}

// openMDNS joins the IPv4 multicast group, optionally answering for the
// given local names.
func openMDNS(localNames []string) (*mdns.Conn, error) {
	addr, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddress)
	if err != nil {
		return nil, err
	}
	l, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("join mdns group: %w", err)
	}
	return mdns.Server(ipv4.NewPacketConn(l), &mdns.Config{
		LocalNames: localNames,
	})
}

// LocalIP returns the machine's outbound IPv4 address. No packets are
// sent; dialing UDP only selects the route.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("no usable network interface: %w", err)
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return localAddr.IP.String(), nil
}
