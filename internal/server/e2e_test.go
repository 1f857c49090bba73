package server

import (
	"bufio"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// dialAndSend opens a connection to addr, writes raw, and returns a buffered
// reader over the connection (nothing has been read yet) together with the
// connection itself.
func dialAndSend(addr, raw string) (*bufio.Reader, net.Conn) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	Expect(err).NotTo(HaveOccurred())
	conn.SetDeadline(time.Now().Add(3 * time.Second))
	_, err = conn.Write([]byte(raw))
	Expect(err).NotTo(HaveOccurred())
	return bufio.NewReader(conn), conn
}

func readStatusLine(r *bufio.Reader) string {
	line, err := r.ReadString('\n')
	Expect(err).NotTo(HaveOccurred())
	return strings.TrimRight(line, "\r\n")
}

var _ = Describe("static file server end-to-end", func() {
	var (
		dir  string
		port int
		srv  *Server
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>home</h1>"), 0o644)).To(Succeed())

		port = freePort(GinkgoT())
		s, err := New(Config{Port: port, Threads: 2, DocRoot: dir, CacheSize: 8})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Start()).To(Succeed())
		srv = s

		Eventually(func() error {
			c, err := net.DialTimeout("tcp", addr(port), 50*time.Millisecond)
			if err == nil {
				c.Close()
			}
			return err
		}, time.Second, 10*time.Millisecond).Should(Succeed())
	})

	AfterEach(func() {
		srv.Stop()
	})

	It("returns 200 for an existing file", func() {
		r, conn := dialAndSend(addr(port), "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
		defer conn.Close()
		Expect(readStatusLine(r)).To(Equal("HTTP/1.1 200 OK"))
	})

	It("returns headers with no body for HEAD", func() {
		r, conn := dialAndSend(addr(port), "HEAD / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
		defer conn.Close()
		Expect(readStatusLine(r)).To(Equal("HTTP/1.1 200 OK"))

		sawContentLength := false
		for {
			line, err := r.ReadString('\n')
			Expect(err).NotTo(HaveOccurred())
			if line == "\r\n" {
				break
			}
			if strings.HasPrefix(line, "Content-Length:") {
				sawContentLength = true
			}
		}
		Expect(sawContentLength).To(BeTrue())
	})

	It("returns 404 for a missing file", func() {
		r, conn := dialAndSend(addr(port), "GET /nope.html HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
		defer conn.Close()
		Expect(readStatusLine(r)).To(Equal("HTTP/1.1 404 Not Found"))
	})

	It("rejects path traversal outside the document root", func() {
		r, conn := dialAndSend(addr(port), "GET /../../../../etc/passwd HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
		defer conn.Close()
		Expect(readStatusLine(r)).To(Equal("HTTP/1.1 404 Not Found"))
	})

	It("serves two pipelined requests on one connection", func() {
		r, conn := dialAndSend(addr(port),
			"GET / HTTP/1.1\r\nHost: x\r\n\r\nGET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
		defer conn.Close()

		Expect(readStatusLine(r)).To(Equal("HTTP/1.1 200 OK"))
		for {
			line, err := r.ReadString('\n')
			Expect(err).NotTo(HaveOccurred())
			if line == "\r\n" {
				break
			}
		}
		body := make([]byte, len("<h1>home</h1>"))
		_, err := io.ReadFull(r, body)
		Expect(err).NotTo(HaveOccurred())
		Expect(readStatusLine(r)).To(Equal("HTTP/1.1 200 OK"))
	})

	It("rejects an oversize header section with 400", func() {
		huge := strings.Repeat("a", 9000)
		raw := "GET / HTTP/1.1\r\nHost: x\r\nX-Huge: " + huge + "\r\nConnection: close\r\n\r\n"
		r, conn := dialAndSend(addr(port), raw)
		defer conn.Close()
		Expect(readStatusLine(r)).To(Equal("HTTP/1.1 400 Bad Request"))
	})
})
