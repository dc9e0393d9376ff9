// Package proxy implements the branch-aware connection proxy (C9): a
// plain TCP listener that resolves the active branch's backend port fresh
// for each new connection, so `use <branch>` only affects connections
// accepted after the switch. Grounded on the teacher's accept-loop +
// goroutine-per-connection shape (internal/start.go), generalized from an
// HTTP health server to a raw bidirectional byte-copy proxy per
// original_source/src/main.rs's run_server/handle_connection.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/joshuapassos/dbranch/internal/config"
	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"github.com/joshuapassos/dbranch/internal/utils"
)

// Proxy listens on the configured proxy port and forwards each accepted
// connection to the currently active branch's postgres container.
type Proxy struct {
	store *config.Store
}

// New builds a Proxy bound to store's live document.
func New(store *config.Store) *Proxy {
	return &Proxy{store: store}
}

// ListenAndServe binds 0.0.0.0:<proxy_port> and serves connections until
// ctx is cancelled or the listener errors.
func (p *Proxy) ListenAndServe(ctx context.Context) error {
	port := p.store.Snapshot().ProxyPort
	addr := fmt.Sprintf("0.0.0.0:%d", port)

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindNetwork, "listen on "+addr, err)
	}
	defer ln.Close()

	utils.Info("proxy listening on %s", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		client, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return dbrerr.Wrap(dbrerr.KindNetwork, "accept connection", err)
			}
		}
		go p.handle(client)
	}
}

// handle resolves the active branch's port at accept time — not at
// listen time — and pipes bytes bidirectionally until either side closes
// or errors.
func (p *Proxy) handle(client net.Conn) {
	defer client.Close()

	traceID := uuid.NewString()
	doc := p.store.Snapshot()
	activeName := doc.ActiveBranchName()

	branch, ok := doc.FindBranch(activeName)
	if !ok {
		utils.Warning("[%s] active branch %q not found, dropping connection", traceID, activeName)
		return
	}

	target := fmt.Sprintf("localhost:%d", branch.Port)
	server, err := net.Dial("tcp", target)
	if err != nil {
		utils.Warning("[%s] failed to dial backend %s: %v", traceID, target, err)
		return
	}
	defer server.Close()

	utils.Debug("[%s] proxying %s -> %s (branch %s)", traceID, client.RemoteAddr(), target, activeName)

	done := make(chan struct{}, 2)
	go copyAndSignal(server, client, done)
	go copyAndSignal(client, server, done)
	<-done
	<-done

	utils.Debug("[%s] connection to branch %s closed", traceID, activeName)
}

func copyAndSignal(dst, src net.Conn, done chan<- struct{}) {
	_, _ = io.Copy(dst, src)
	if c, ok := dst.(interface{ CloseWrite() error }); ok {
		c.CloseWrite()
	}
	done <- struct{}{}
}
