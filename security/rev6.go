package security

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"encoding/binary"
	"errors"

	"github.com/xdg-go/stringprep"
)

// prepPassword normalizes a revision 6 password with SASLprep and
// truncates it to the 127-byte limit the handler defines.
func prepPassword(password string) []byte {
	prepped, err := stringprep.SASLprep.Prepare(password)
	if err != nil {
		prepped = password
	}
	b := []byte(prepped)
	if len(b) > 127 {
		b = b[:127]
	}
	return b
}

func (h *Handler) authenticateRev6(password string) error {
	pwd := prepPassword(password)

	if len(h.uEntry) >= 48 && len(h.ue) >= 32 {
		vSalt, kSalt := h.uEntry[32:40], h.uEntry[40:48]
		if bytes.Equal(hashRev6(pwd, vSalt, nil), h.uEntry[:32]) {
			wrap := hashRev6(pwd, kSalt, nil)
			key, err := aesCBCZeroIV(wrap, h.ue[:32], false)
			if err != nil {
				return err
			}
			h.key = key
			return h.checkPermsEntry()
		}
	}
	if len(h.oEntry) >= 48 && len(h.oe) >= 32 && len(h.uEntry) >= 48 {
		vSalt, kSalt := h.oEntry[32:40], h.oEntry[40:48]
		if bytes.Equal(hashRev6(pwd, vSalt, h.uEntry[:48]), h.oEntry[:32]) {
			wrap := hashRev6(pwd, kSalt, h.uEntry[:48])
			key, err := aesCBCZeroIV(wrap, h.oe[:32], false)
			if err != nil {
				return err
			}
			h.key = key
			h.ownerAuthed = true
			return h.checkPermsEntry()
		}
	}
	return &AuthError{Reason: "wrong password"}
}

// checkPermsEntry decrypts the Perms entry with the recovered file key
// and adopts the authoritative permission value it carries.
func (h *Handler) checkPermsEntry() error {
	if len(h.perms) < 16 {
		return nil
	}
	block, err := aes.NewCipher(h.key)
	if err != nil {
		return err
	}
	out := make([]byte, 16)
	block.Decrypt(out, h.perms[:16])
	if out[9] != 'a' || out[10] != 'd' || out[11] != 'b' {
		return errors.New("Perms entry does not verify against file key")
	}
	h.p = int32(binary.LittleEndian.Uint32(out[:4]))
	if out[8] == 'F' {
		h.encryptMeta = false
	}
	return nil
}

// makePermsEntry builds the encrypted Perms value for revision 6.
func makePermsEntry(fileKey []byte, p int32, encryptMetadata bool) ([]byte, error) {
	block, err := aes.NewCipher(fileKey)
	if err != nil {
		return nil, err
	}
	var plain [16]byte
	binary.LittleEndian.PutUint32(plain[:4], uint32(p))
	plain[4], plain[5], plain[6], plain[7] = 0xFF, 0xFF, 0xFF, 0xFF
	if encryptMetadata {
		plain[8] = 'T'
	} else {
		plain[8] = 'F'
	}
	plain[9], plain[10], plain[11] = 'a', 'd', 'b'
	if _, err := rand.Read(plain[12:]); err != nil {
		return nil, err
	}
	out := make([]byte, 16)
	block.Encrypt(out, plain[:])
	return out, nil
}
