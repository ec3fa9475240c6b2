package wire

import (
	"crypto/md5"
	"testing"
)

// signReply fills reply's Response-Authenticator the way a RADIUS server
// does: MD5 over code+id+length, the request authenticator, the reply's
// attributes, and the shared secret. Sign itself only signs requests.
func signReply(reply, secret, request []byte) {
	h := md5.New()
	h.Write(reply[0:4])
	h.Write(request[4:20])
	h.Write(reply[HeaderLen:packetLength(reply)])
	h.Write(secret)
	copy(reply[4:20], h.Sum(nil))
}

func newAccessRequest() []byte {
	pkt := make([]byte, HeaderLen, MaxPacketSize)
	pkt[0] = byte(CodeAccessRequest)
	pkt[1] = 7
	setLength(pkt, HeaderLen)
	return pkt
}

func TestAppendAttributeUpdatesLength(t *testing.T) {
	pkt := newAccessRequest()
	pkt, err := AppendAttribute(pkt, MaxPacketSize, AttrNASIdentifier, []byte("nas1"))
	if err != nil {
		t.Fatalf("AppendAttribute: %v", err)
	}
	if got := packetLength(pkt); got != HeaderLen+6 {
		t.Fatalf("length = %d, want %d", got, HeaderLen+6)
	}
	if len(pkt) != HeaderLen+6 {
		t.Fatalf("len(pkt) = %d, want %d", len(pkt), HeaderLen+6)
	}
}

func TestAppendAttributeRejectsOversizedCapacity(t *testing.T) {
	pkt := newAccessRequest()
	_, err := AppendAttribute(pkt, HeaderLen+4, AttrNASIdentifier, []byte("toolong"))
	if err != ErrNoSpace {
		t.Fatalf("err = %v, want ErrNoSpace", err)
	}
}

func TestCheckRejectsShortPacket(t *testing.T) {
	if err := Check(make([]byte, 5)); err != ErrPacketTooShort {
		t.Fatalf("err = %v, want ErrPacketTooShort", err)
	}
}

func TestCheckRejectsTruncatedAttribute(t *testing.T) {
	pkt := newAccessRequest()
	pkt = append(pkt, 32, 10) // declares 10 bytes but body is absent
	setLength(pkt, len(pkt))
	if err := Check(pkt); err != ErrBadAttribute {
		t.Fatalf("err = %v, want ErrBadAttribute", err)
	}
}

func TestCheckAcceptsWellFormedPacket(t *testing.T) {
	pkt := newAccessRequest()
	pkt, err := AppendAttribute(pkt, MaxPacketSize, AttrNASIdentifier, []byte("nas1"))
	if err != nil {
		t.Fatalf("AppendAttribute: %v", err)
	}
	if err := Check(pkt); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	req := newAccessRequest()
	req, err := AppendAttribute(req, MaxPacketSize, AttrMessageAuthenticator, make([]byte, 16))
	if err != nil {
		t.Fatalf("AppendAttribute: %v", err)
	}
	if err := Sign(req, secret, true); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	reply := make([]byte, HeaderLen)
	reply[0] = byte(CodeAccessAccept)
	reply[1] = req[1]
	setLength(reply, HeaderLen)
	signReply(reply, secret, req)

	if err := Verify(reply, secret, req); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	req := newAccessRequest()
	if err := Sign(req, []byte("s3cret"), true); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	reply := make([]byte, HeaderLen)
	reply[0] = byte(CodeAccessAccept)
	reply[1] = req[1]
	setLength(reply, HeaderLen)
	signReply(reply, []byte("s3cret"), req)
	if err := Verify(reply, []byte("wrong"), req); err != ErrAuthMismatch {
		t.Fatalf("err = %v, want ErrAuthMismatch", err)
	}
}
