// Command wiretap records a raw AMI session to a file for use as a test
// fixture, and redacts captures before they are committed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/asterisk-proxy/internal/ami"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Asterisk AMI host")
	port := flag.Int("port", 5038, "Asterisk AMI port")
	user := flag.String("user", "admin", "AMI username")
	secret := flag.String("secret", "", "AMI secret")
	outDir := flag.String("outdir", "testdata/captures", "Output directory for captures")
	duration := flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	snapshot := flag.Bool("snapshot", true, "Request channel, queue and peer lists after login")
	sanitize := flag.String("sanitize", "", "Sanitize a capture file in-place (keeps .bak)")
	flag.Parse()

	if *sanitize != "" {
		if err := sanitizeFile(*sanitize); err != nil {
			fmt.Fprintf(os.Stderr, "sanitize error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("sanitized:", *sanitize)
		return
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "error: -secret is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	addr := net.JoinHostPort(*host, fmt.Sprintf("%d", *port))
	counts, err := capture(ctx, addr, *user, *secret, *outDir, *snapshot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, counts)
}

// snapshotActions are the list actions the proxy issues on startup.
var snapshotActions = []string{"CoreShowChannels", "QueueStatus", "SIPpeers", "ParkedCalls"}

// capture streams the session to a file while counting packets by type.
func capture(ctx context.Context, addr, user, secret, outDir string, snapshot bool) (map[string]int, error) {
	fmt.Printf("connecting to %s...\n", addr)

	var d net.Dialer
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := d.DialContext(dctx, "tcp", addr)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	filename := filepath.Join(outDir, time.Now().Format("20060102-150405")+".raw")
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	defer f.Close()
	fmt.Printf("writing to %s\n", filename)

	actions := []ami.Action{ami.NewAction("Login", "Username", user, "Secret", secret, "Events", "on")}
	if snapshot {
		for _, name := range snapshotActions {
			actions = append(actions, ami.NewAction(name))
		}
	}
	for i, a := range actions {
		if _, err := conn.Write(a.Marshal(fmt.Sprintf("wiretap-%d", i))); err != nil {
			return nil, fmt.Errorf("sending %s: %w", a.Name, err)
		}
	}

	fmt.Println("streaming events (ctrl+c to stop)...")
	counts := make(map[string]int)
	p := ami.NewParser(io.TeeReader(conn, f))
	for {
		evt, ok := p.Next()
		if !ok {
			break
		}
		if evt.IsResponse() {
			counts["Response: "+evt.Get("Response")]++
			continue
		}
		counts[evt.Type()]++
	}
	if ctx.Err() != nil {
		return counts, nil
	}
	return counts, p.Err()
}

func printSummary(w io.Writer, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "%6d  %s\n", counts[n], n)
	}
}

var (
	ipPattern     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	numberPattern = regexp.MustCompile(`\+?\b\d{7,15}\b`)
	secretPattern = regexp.MustCompile(`(?i)^((?:Secret|Password|MD5secret):\s*)[^\r\n]+`)

	// Headers that carry external caller numbers
	numberHeaders = []string{"CallerID", "ConnectedLine", "Exten:", "Extension:", "Source:", "Destination:", "DialString", "Data1"}
)

// sanitizeLine redacts credentials, addresses and external numbers.
func sanitizeLine(line string) string {
	line = secretPattern.ReplaceAllString(line, "${1}REDACTED")
	line = ipPattern.ReplaceAllStringFunc(line, func(ip string) string {
		if ip == "127.0.0.1" {
			return ip
		}
		return "10.0.0.1"
	})
	for _, h := range numberHeaders {
		if strings.Contains(line, h) {
			return numberPattern.ReplaceAllString(line, "0000000000")
		}
	}
	return line
}

func sanitizeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path+".bak", data, 0o644); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		lines[i] = sanitizeLine(line)
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}
