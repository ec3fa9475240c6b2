package wire

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
)

// Sign computes the request authenticator for an outbound packet and, for
// Access-Request packets, the Message-Authenticator attribute (RFC 2869
// §5.14), rewriting pkt in place. It must be called once per physical
// send: failover to a different server changes the shared secret, so the
// signature has to be recomputed for the new destination even when the
// packet bytes are otherwise unchanged.
//
// isRequest distinguishes an Access-Request (fresh random authenticator,
// HMAC-MD5 Message-Authenticator over the whole packet with the attribute
// zeroed) from an Accounting-Request (authenticator is MD5 over the
// packet with a zeroed authenticator field, per RFC 2866 §4.1).
func Sign(pkt []byte, secret []byte, isRequest bool) error {
	if len(pkt) < HeaderLen {
		return ErrPacketTooShort
	}
	if isRequest {
		if _, err := rand.Read(pkt[4:20]); err != nil {
			return err
		}
		return signMessageAuthenticator(pkt, secret)
	}
	return signAccountingRequest(pkt, secret)
}

// signMessageAuthenticator locates an existing Message-Authenticator
// attribute (added by the caller via AppendAttribute as zero-filled
// placeholder bytes) and fills it with HMAC-MD5(secret, pkt-with-zeroed-MA).
// If no such attribute is present the packet is left unsigned — not every
// Access-Request carries one, and this is not an error.
func signMessageAuthenticator(pkt []byte, secret []byte) error {
	off, ok := findAttribute(pkt, AttrMessageAuthenticator)
	if !ok {
		return nil
	}
	for i := range pkt[off+2 : off+18] {
		pkt[off+2+i] = 0
	}
	mac := hmac.New(md5.New, secret)
	mac.Write(pkt)
	sum := mac.Sum(nil)
	copy(pkt[off+2:off+18], sum)
	return nil
}

func signAccountingRequest(pkt []byte, secret []byte) error {
	zeroed := make([]byte, len(pkt))
	copy(zeroed, pkt)
	for i := 4; i < 20; i++ {
		zeroed[i] = 0
	}
	h := md5.New()
	h.Write(zeroed)
	h.Write(secret)
	sum := h.Sum(nil)
	copy(pkt[4:20], sum)
	return nil
}

// Verify checks an inbound reply's authenticator against the request that
// provoked it: Response-Authenticator = MD5(code+id+length +
// request-authenticator + attributes + secret), per RFC 2865 §3.
func Verify(reply []byte, secret []byte, request []byte) error {
	if len(reply) < HeaderLen || len(request) < HeaderLen {
		return ErrPacketTooShort
	}
	length := packetLength(reply)
	if length > len(reply) {
		return ErrBadLength
	}
	h := md5.New()
	h.Write(reply[0:4])
	h.Write(request[4:20])
	if length > HeaderLen {
		h.Write(reply[HeaderLen:length])
	}
	h.Write(secret)
	expected := h.Sum(nil)
	if !hmac.Equal(expected, reply[4:20]) {
		return ErrAuthMismatch
	}
	return nil
}

func findAttribute(pkt []byte, typ byte) (offset int, ok bool) {
	length := packetLength(pkt)
	off := HeaderLen
	for off+2 <= length {
		alen := int(pkt[off+1])
		if alen < 2 || off+alen > length {
			return 0, false
		}
		if pkt[off] == typ {
			return off, true
		}
		off += alen
	}
	return 0, false
}
