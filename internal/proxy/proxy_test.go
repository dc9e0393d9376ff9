package proxy

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/joshuapassos/dbranch/internal/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// echoBackend starts a TCP listener that echoes back anything it reads,
// standing in for a branch's postgres container.
func echoBackend(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func TestProxyForwardsToActiveBranch(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store, err := config.Open(fsys, "/etc/dbranch/config.json")
	require.NoError(t, err)

	mainPort := echoBackend(t)
	require.NoError(t, store.Mutate(func(d *config.Document) error {
		d.AddBranch(config.Branch{Name: "main", IsMain: true, Port: mainPort})
		return nil
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	proxyPort := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	require.NoError(t, store.Mutate(func(d *config.Document) error {
		d.ProxyPort = proxyPort
		return nil
	}))

	p := New(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.ListenAndServe(ctx)
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(proxyPort))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}
