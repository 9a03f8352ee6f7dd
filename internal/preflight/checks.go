package preflight

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sys/unix"

	"gfimx/internal/baseline"
	"gfimx/internal/broker"
	"gfimx/internal/config"
	"gfimx/internal/policy"
)

const serviceTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRoot verifies that a monitored root can be listed, or read when it
// is a file. Symlinked roots are reported because scans skip them.
func CheckRoot(path string) Result {
	name := "Root " + path
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: "does not exist"}
		}
		return Result{Name: name, Detail: fmt.Sprintf("stat: %v", err)}
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return Result{Name: name, Detail: "is a symlink and will not be followed"}
	case info.IsDir():
		if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("cannot list: %v", err)}
		}
		return Result{Name: name, Passed: true, Detail: "directory readable"}
	case info.Mode().IsRegular():
		if err := unix.Access(path, unix.R_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("cannot read: %v", err)}
		}
		return Result{Name: name, Passed: true, Detail: "file readable"}
	default:
		return Result{Name: name, Detail: "not a regular file or directory"}
	}
}

// CheckRoots runs CheckRoot for every root in the policy.
func CheckRoots(pol *policy.Policy) []Result {
	roots := Roots(pol)
	results := make([]Result, 0, len(roots))
	for _, root := range roots {
		results = append(results, CheckRoot(root))
	}
	return results
}

// CheckStore opens the configured baseline store and lists it.
func CheckStore(ctx context.Context, cfg *config.Config) Result {
	name := "Baseline store (" + cfg.Store.Driver + ")"
	checkCtx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	store, err := baseline.Open(checkCtx, cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()
	records, err := store.List(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d records", len(records))}
}

// CheckBroker connects to the broker and verifies a policy is published
// for this agent.
func CheckBroker(ctx context.Context, cfg *config.Config) Result {
	const name = "Broker"
	checkCtx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	b, err := broker.NewValkey(checkCtx, broker.Options{
		Addr:     cfg.Broker.Addr,
		Password: cfg.Broker.Password,
		DB:       cfg.Broker.DB,
		Name:     cfg.Agent.Name,
	})
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer b.Close()
	if _, err := b.GetPolicy(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s reachable, but %v", cfg.Broker.Addr, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (policy %s present)", cfg.Broker.Addr, broker.PolicyKey(cfg.Agent.Name))}
}

// CheckKafka dials the first reachable Kafka broker.
func CheckKafka(ctx context.Context, brokers []string) Result {
	const name = "Kafka"
	checkCtx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	var errs []string
	for _, addr := range brokers {
		conn, err := kafka.DialContext(checkCtx, "tcp", addr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", addr, err))
			continue
		}
		_ = conn.Close()
		return Result{Name: name, Passed: true, Detail: addr + " reachable"}
	}
	return Result{Name: name, Detail: strings.Join(errs, "; ")}
}

// CheckTCP verifies that host:port accepts connections.
func CheckTCP(ctx context.Context, name, addr string) Result {
	dialer := net.Dialer{Timeout: serviceTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", addr, err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: addr + " reachable"}
}
