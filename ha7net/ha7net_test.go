// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ha7net

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GermanBionicSystems/owfs/common"
	"github.com/GermanBionicSystems/owfs/owbus"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/onewire"
)

// fakeHA7 is an HA7Net simulator listening on the loopback interface. handler
// turns a request line into a full HTTP response.
type fakeHA7 struct {
	ln      net.Listener
	handler func(req string) string

	mu       sync.Mutex
	requests []string
}

func newFakeHA7(t *testing.T, handler func(req string) string) *fakeHA7 {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeHA7{ln: ln, handler: handler}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeHA7) addr() string {
	return f.ln.Addr().String()
}

func (f *fakeHA7) serve() {
	for {
		c, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(c)
	}
}

func (f *fakeHA7) handle(c net.Conn) {
	defer c.Close()
	c.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(c)
	line, err := r.ReadString('\n')
	if err != nil {
		return
	}
	if blank, err := r.ReadString('\n'); err != nil || blank != "\n" {
		return
	}
	line = strings.TrimSuffix(line, "\n")
	f.mu.Lock()
	f.requests = append(f.requests, line)
	f.mu.Unlock()
	io.WriteString(c, f.handler(line))
}

func (f *fakeHA7) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func page(body string) string {
	return "HTTP/1.1 200 OK\r\nServer: HA7Net\r\nContent-Type: text/html\r\n\r\n" +
		"<html><head><title>HA7Net</title></head><body>" + body + "</body></html>"
}

func searchPage(addrs ...string) string {
	var b strings.Builder
	for i, a := range addrs {
		fmt.Fprintf(&b, `<INPUT CLASS="HA7Value" NAME="Address_%d" ID="ADDRESS_%d" TYPE="text" VALUE="%s">`, i, i, a)
	}
	return page(b.String())
}

func resultPage(hex string) string {
	return page(`<INPUT TYPE="TEXT" NAME="ResultData_0" ID="RESULTDATA_0" SIZE="64" VALUE="` + hex + `">`)
}

// param returns the value of a query parameter of a request line.
func param(req, name string) (string, bool) {
	i := strings.IndexByte(req, '?')
	if i < 0 {
		return "", false
	}
	q := strings.TrimSuffix(req[i+1:], " HTTP/1.0")
	for _, kv := range strings.Split(q, "&") {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return v, true
		}
	}
	return "", false
}

func makeAddress(family byte, serial uint64) onewire.Address {
	var b [8]byte
	b[0] = family
	for i := 1; i < 7; i++ {
		b[i] = byte(serial >> (8 * (i - 1)))
	}
	b[7] = onewire.CalcCRC(b[:7])
	a, err := common.AddressFromBytes(b[:])
	if err != nil {
		panic(err)
	}
	return a
}

// echo answers every command with an empty page and WriteBlock with its own
// data.
func echo(req string) string {
	if strings.HasPrefix(req, "GET /1Wire/WriteBlock.html") {
		d, _ := param(req, "Data")
		return resultPage(d)
	}
	return page("")
}

func detected(t *testing.T, f *fakeHA7) (*Adapter, *owbus.Conn) {
	a, err := New(f.addr(), &Opts{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	c := owbus.NewConn(f.addr())
	if err := a.Detect(c); err != nil {
		t.Fatal(err)
	}
	return a, c
}

func TestNew_noEndpoint(t *testing.T) {
	if a, err := New("", nil); a != nil || err == nil {
		t.Fatal("empty endpoint accepted")
	}
}

func TestDetect(t *testing.T) {
	f := newFakeHA7(t, echo)
	a, c := detected(t, f)
	if c.Kind != owbus.AdapterHA7Net || c.AdapterName != "HA7Net" || c.Mode != owbus.BusHA7Net {
		t.Fatalf("%+v", c)
	}
	if c.AnyDevices != owbus.AnyDevicesUnknown || c.BundlingLength != fifoSize {
		t.Fatalf("%+v", c)
	}
	if diff := cmp.Diff([]string{"GET /1Wire/ReleaseLock.html HTTP/1.0"}, f.log()); diff != "" {
		t.Fatal(diff)
	}
	if s := a.String(); s != "HA7Net{"+f.addr()+"}" {
		t.Fatal(s)
	}
}

func TestDetect_badStatus(t *testing.T) {
	f := newFakeHA7(t, func(string) string {
		return "HTTP/1.1 404 Not Found\r\n\r\n"
	})
	a, err := New(f.addr(), &Opts{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	c := owbus.NewConn(f.addr())
	err = a.Detect(c)
	if !owbus.IsProtocol(err) || owbus.IsConnect(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	// Nothing was detected, later operations fail without touching the network.
	if err := a.Reset(c); !owbus.IsConnect(err) || !errors.Is(err, owbus.ErrNotDetected) {
		t.Fatalf("expected connect error, got %v", err)
	}
	if n := len(f.log()); n != 1 {
		t.Fatalf("%d requests", n)
	}
}

func TestDetect_refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	a, err := New(addr, &Opts{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Detect(owbus.NewConn(addr)); !owbus.IsConnect(err) {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestReset(t *testing.T) {
	f := newFakeHA7(t, echo)
	a, c := detected(t, f)
	if err := a.Reset(c); err != nil {
		t.Fatal(err)
	}
	if got := f.log()[1]; got != "GET /1Wire/Reset.html HTTP/1.0" {
		t.Fatal(got)
	}
}

func TestNextBoth(t *testing.T) {
	want := []onewire.Address{makeAddress(0x28, 0x0000070e41ac), makeAddress(0x10, 0x123456)}
	f := newFakeHA7(t, func(req string) string {
		if strings.HasPrefix(req, "GET /1Wire/Search.html") {
			return searchPage(common.EncodeAddress(want[0]), common.EncodeAddress(want[1]))
		}
		return page("")
	})
	a, c := detected(t, f)
	s := owbus.NewSearch(false)
	for pass := 0; pass < 2; pass++ {
		var got []onewire.Address
		for {
			st, err := a.NextBoth(s, c)
			if err != nil {
				t.Fatal(err)
			}
			if st == owbus.SearchDone {
				break
			}
			got = append(got, s.Addr)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("pass %d (-want +got):\n%s", pass, diff)
		}
		s.Restart()
	}
	searches := 0
	for _, r := range f.log() {
		if r == "GET /1Wire/Search.html HTTP/1.0" {
			searches++
		}
	}
	if searches != 2 {
		t.Fatalf("%d searches: %q", searches, f.log())
	}
}

func TestNextBoth_conditional(t *testing.T) {
	alarm := makeAddress(0x28, 7)
	f := newFakeHA7(t, func(req string) string {
		if v, ok := param(req, "Conditional"); ok && v == "1" {
			return searchPage(common.EncodeAddress(alarm))
		}
		return searchPage()
	})
	a, c := detected(t, f)
	got, err := owbus.Enumerate(a, c, true)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]onewire.Address{alarm}, got); diff != "" {
		t.Fatal(diff)
	}
	if c.Alarm.Len() != 1 || c.Main.Len() != 0 {
		t.Fatal("wrong blob")
	}
	if got := f.log()[1]; got != "GET /1Wire/Search.html?Conditional=1 HTTP/1.0" {
		t.Fatal(got)
	}
}

func TestNextBoth_empty(t *testing.T) {
	f := newFakeHA7(t, func(string) string { return searchPage() })
	a, c := detected(t, f)
	s := owbus.NewSearch(false)
	if st, err := a.NextBoth(s, c); st != owbus.SearchDone || err != nil {
		t.Fatalf("%s %v", st, err)
	}
	if !s.LastDevice {
		t.Fatal("LastDevice not set")
	}
}

func TestNextBoth_crc(t *testing.T) {
	good := makeAddress(0x28, 0)
	data := []struct {
		name   string
		values []string
		status owbus.SearchStatus
		kept   int
	}{
		{"zero CRC rejected", []string{"0000000000000028"}, owbus.SearchError, 0},
		{"valid CRC accepted", []string{common.EncodeAddress(good)}, owbus.SearchGood, 1},
		{"partial kept", []string{common.EncodeAddress(good), "0000000000000028"}, owbus.SearchError, 1},
		{"short value", []string{"1E000000000028"}, owbus.SearchError, 0},
		{"lower case", []string{strings.ToLower(common.EncodeAddress(good))}, owbus.SearchError, 0},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			f := newFakeHA7(t, func(req string) string {
				if strings.Contains(req, "Search") {
					return searchPage(line.values...)
				}
				return page("")
			})
			a, c := detected(t, f)
			s := owbus.NewSearch(false)
			st, err := a.NextBoth(s, c)
			if st != line.status {
				t.Fatalf("status %s, err %v", st, err)
			}
			if st == owbus.SearchError {
				if !owbus.IsProtocol(err) {
					t.Fatalf("expected protocol error, got %v", err)
				}
				if !c.Main.Troubled {
					t.Fatal("blob should be troubled")
				}
			} else if s.Addr != good {
				t.Fatalf("%#x", uint64(s.Addr))
			}
			if c.Main.Len() != line.kept {
				t.Fatalf("kept %d addresses", c.Main.Len())
			}
		})
	}
}

func TestSelectAndSendback_chunks(t *testing.T) {
	f := newFakeHA7(t, echo)
	a, c := detected(t, f)
	addr := makeAddress(0x28, 0x0000070e41ac)
	w := make([]byte, 80)
	for i := range w {
		w[i] = byte(i)
	}
	r := make([]byte, len(w))
	if err := a.SelectAndSendback(c, addr, w, r); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(w, r); diff != "" {
		t.Fatal(diff)
	}
	reqs := f.log()[1:]
	if len(reqs) != 3 {
		t.Fatalf("%d exchanges: %q", len(reqs), reqs)
	}
	for i, size := range []int{32, 32, 16} {
		d, _ := param(reqs[i], "Data")
		if len(d) != 2*size {
			t.Errorf("block %d: %d hex digits", i, len(d))
		}
		got, hasAddr := param(reqs[i], "Address")
		if hasAddr != (i == 0) {
			t.Errorf("block %d: address present %t", i, hasAddr)
		}
		if hasAddr && got != common.EncodeAddress(addr) {
			t.Errorf("block %d: address %s", i, got)
		}
	}
}

func TestSendbackData(t *testing.T) {
	f := newFakeHA7(t, func(req string) string {
		if strings.Contains(req, "WriteBlock") {
			return resultPage("0102FF")
		}
		return page("")
	})
	a, c := detected(t, f)
	r := make([]byte, 3)
	if err := a.SendbackData(c, []byte{0xbe, 0xff, 0xff}, r); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x01, 0x02, 0xff}, r); diff != "" {
		t.Fatal(diff)
	}
	if got := f.log()[1]; got != "GET /1Wire/WriteBlock.html?Data=BEFFFF HTTP/1.0" {
		t.Fatal(got)
	}
	if err := a.SendbackData(c, []byte{1}, nil); err == nil {
		t.Fatal("length mismatch accepted")
	}
}

func TestSendbackData_badResult(t *testing.T) {
	for _, body := range []string{page(""), resultPage("01"), resultPage("zz")} {
		f := newFakeHA7(t, func(req string) string {
			if strings.Contains(req, "WriteBlock") {
				return body
			}
			return page("")
		})
		a, c := detected(t, f)
		if err := a.SendbackData(c, []byte{1, 2}, make([]byte, 2)); !owbus.IsProtocol(err) {
			t.Fatalf("expected protocol error, got %v", err)
		}
	}
}

func TestSelect(t *testing.T) {
	f := newFakeHA7(t, echo)
	a, c := detected(t, f)
	addr := makeAddress(0x10, 1)
	if err := a.Select(c, &addr); err != nil {
		t.Fatal(err)
	}
	if err := a.Select(c, nil); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"GET /1Wire/ReleaseLock.html HTTP/1.0",
		"GET /1Wire/AddressDevice.html?Address=" + common.EncodeAddress(addr) + " HTTP/1.0",
		"GET /1Wire/Reset.html HTTP/1.0",
	}
	if diff := cmp.Diff(want, f.log()); diff != "" {
		t.Fatal(diff)
	}
}

func TestLock(t *testing.T) {
	f := newFakeHA7(t, func(req string) string {
		if strings.HasPrefix(req, "GET /1Wire/GetLock.html") {
			return page(`<INPUT TYPE="TEXT" NAME="LockID_0" VALUE="3862105488">`)
		}
		return page("")
	})
	a, c := detected(t, f)
	if err := a.Lock(c); err != nil {
		t.Fatal(err)
	}
	if !c.Locked {
		t.Fatal("not locked")
	}
	if err := a.Reset(c); err != nil {
		t.Fatal(err)
	}
	if err := a.Unlock(c); err != nil {
		t.Fatal(err)
	}
	if c.Locked {
		t.Fatal("still locked")
	}
	if err := a.Reset(c); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"GET /1Wire/ReleaseLock.html HTTP/1.0",
		"GET /1Wire/GetLock.html HTTP/1.0",
		"GET /1Wire/Reset.html?LockID=3862105488 HTTP/1.0",
		"GET /1Wire/ReleaseLock.html?LockID=3862105488 HTTP/1.0",
		"GET /1Wire/Reset.html HTTP/1.0",
	}
	if diff := cmp.Diff(want, f.log()); diff != "" {
		t.Fatal(diff)
	}
}

func TestLock_noID(t *testing.T) {
	f := newFakeHA7(t, echo)
	a, c := detected(t, f)
	if err := a.Lock(c); !owbus.IsProtocol(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if c.Locked {
		t.Fatal("locked")
	}
}

func TestClose(t *testing.T) {
	f := newFakeHA7(t, echo)
	a, c := detected(t, f)
	a.Close(c)
	if err := a.Reset(c); !owbus.IsConnect(err) {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestBus(t *testing.T) {
	f := newFakeHA7(t, func(req string) string {
		if strings.Contains(req, "WriteBlock") {
			d, _ := param(req, "Data")
			// Answer the two read slots.
			return resultPage(d[:len(d)-4] + "A5C3")
		}
		return page("")
	})
	a, err := New(f.addr(), &Opts{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	bus, err := owbus.Open(a, owbus.NewConn(f.addr()))
	if err != nil {
		t.Fatal(err)
	}
	defer bus.Close()
	d := onewire.Dev{Bus: bus, Addr: makeAddress(0x28, 1)}
	r := make([]byte, 2)
	if err := d.Tx([]byte{0xbe}, r); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0xa5 || r[1] != 0xc3 {
		t.Fatalf("% X", r)
	}
	reqs := f.log()
	if len(reqs) != 3 || reqs[1] != "GET /1Wire/Reset.html HTTP/1.0" {
		t.Fatalf("%q", reqs)
	}
}
