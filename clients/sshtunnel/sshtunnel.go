// Package sshtunnel forwards a local port to an upstream rpc endpoint through an ssh server.
package sshtunnel

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type Endpoint struct {
	Host string
	Port int
	User string
}

// NewEndpoint parses [user@]host[:port].
func NewEndpoint(s string) *Endpoint {
	endpoint := &Endpoint{
		Host: s,
	}
	if parts := strings.SplitN(endpoint.Host, "@", 2); len(parts) > 1 {
		endpoint.User = parts[0]
		endpoint.Host = parts[1]
	}
	if host, port, err := net.SplitHostPort(endpoint.Host); err == nil {
		endpoint.Host = host
		endpoint.Port, _ = strconv.Atoi(port)
	}
	return endpoint
}

func (endpoint *Endpoint) String() string {
	return net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port))
}

type SSHTunnel struct {
	Local  *Endpoint
	Server *Endpoint
	Remote *Endpoint
	Config *ssh.ClientConfig
	Log    logrus.FieldLogger

	mutex    sync.Mutex
	listener net.Listener
}

func (tunnel *SSHTunnel) logf(format string, args ...interface{}) {
	if tunnel.Log != nil {
		tunnel.Log.Debugf(format, args...)
	}
}

// Start listens on the local endpoint. Local.Port holds the bound port afterwards.
func (tunnel *SSHTunnel) Start() error {
	tunnel.mutex.Lock()
	defer tunnel.mutex.Unlock()

	if tunnel.listener != nil {
		return fmt.Errorf("already running")
	}
	listener, err := net.Listen("tcp", tunnel.Local.String())
	if err != nil {
		return err
	}
	tunnel.listener = listener
	tunnel.Local.Port = listener.Addr().(*net.TCPAddr).Port

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				tunnel.logf("listener closed: %v", err)
				return
			}
			tunnel.logf("accepted connection")
			go tunnel.forward(conn)
		}
	}()
	return nil
}

func (tunnel *SSHTunnel) Stop() {
	tunnel.mutex.Lock()
	defer tunnel.mutex.Unlock()

	if tunnel.listener != nil {
		tunnel.listener.Close()
		tunnel.listener = nil
	}
}

func (tunnel *SSHTunnel) forward(localConn net.Conn) {
	serverConn, err := ssh.Dial("tcp", tunnel.Server.String(), tunnel.Config)
	if err != nil {
		tunnel.logf("server dial error: %v", err)
		localConn.Close()
		return
	}
	tunnel.logf("connected to %v (1 of 2)", tunnel.Server.String())

	remoteConn, err := serverConn.Dial("tcp", tunnel.Remote.String())
	if err != nil {
		tunnel.logf("remote dial error: %v", err)
		localConn.Close()
		serverConn.Close()
		return
	}
	tunnel.logf("connected to %v (2 of 2)", tunnel.Remote.String())

	var closeOnce sync.Once
	closeAll := func() {
		closeOnce.Do(func() {
			localConn.Close()
			remoteConn.Close()
			serverConn.Close()
		})
	}
	copyConn := func(writer, reader net.Conn) {
		defer closeAll()
		if _, err := io.Copy(writer, reader); err != nil {
			tunnel.logf("io.Copy error: %v", err)
		}
	}
	go copyConn(localConn, remoteConn)
	go copyConn(remoteConn, localConn)
}

func PrivateKeyFile(file string) (ssh.AuthMethod, error) {
	buffer, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	key, err := ssh.ParsePrivateKey(buffer)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(key), nil
}

// HostKeyCallback verifies host keys against a known_hosts file. Without a file any key is accepted.
func HostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(knownHostsFile)
}

// NewSSHTunnel creates a tunnel to destination via the ssh server. The local port is chosen on Start.
func NewSSHTunnel(server string, auth ssh.AuthMethod, hostKeyCallback ssh.HostKeyCallback, destination string) *SSHTunnel {
	serverEndpoint := NewEndpoint(server)
	if serverEndpoint.Port == 0 {
		serverEndpoint.Port = 22
	}
	return &SSHTunnel{
		Config: &ssh.ClientConfig{
			User:            serverEndpoint.User,
			Auth:            []ssh.AuthMethod{auth},
			HostKeyCallback: hostKeyCallback,
		},
		Local:  NewEndpoint("localhost:0"),
		Server: serverEndpoint,
		Remote: NewEndpoint(destination),
	}
}
