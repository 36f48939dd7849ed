package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"github.com/pdfdesk/pdfengine/object"
)

// passwordPadding is the 32-byte pad defined for the standard handler's
// legacy key derivation.
var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

// legacyFileKey derives the file encryption key for revisions 2-4 from a
// (user) password, the O entry, the permission value and the file ID.
func legacyFileKey(pwd, oEntry []byte, p int32, fileID []byte, keyLen int, r int) ([]byte, error) {
	if keyLen <= 0 {
		keyLen = 5
	}
	if keyLen > 16 {
		keyLen = 16
	}
	data := make([]byte, 0, 32+len(oEntry)+4+len(fileID))
	data = append(data, padPassword(pwd)...)
	data = append(data, oEntry...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(p))
	data = append(data, pBuf[:]...)
	data = append(data, fileID...)

	sum := md5.Sum(data)
	key := sum[:]
	if r >= 3 {
		// The documented iteration count for revision 3 and later.
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key[:keyLen])
			key = sum[:]
		}
	}
	return key[:keyLen], nil
}

// ownerKey derives the RC4 key used to build or unwrap the O entry.
func ownerKey(ownerPwd []byte, keyLen int, r int) []byte {
	sum := md5.Sum(padPassword(ownerPwd))
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
	}
	if keyLen <= 0 || keyLen > 16 {
		keyLen = 16
	}
	return key[:keyLen]
}

// makeOwnerEntry computes the O entry from owner and user passwords.
func makeOwnerEntry(ownerPwd, userPwd []byte, keyLen int, r int) []byte {
	key := ownerKey(ownerPwd, keyLen, r)
	val := rc4Simple(key, padPassword(userPwd))
	if r >= 3 {
		for i := 1; i <= 19; i++ {
			val = rc4Simple(xorKey(key, byte(i)), val)
		}
	}
	return val
}

// recoverUserPassword unwraps the O entry with a candidate owner
// password, yielding the padded user password it protects.
func recoverUserPassword(ownerPwd, oEntry []byte, keyLen int, r int) []byte {
	key := ownerKey(ownerPwd, keyLen, r)
	val := append([]byte(nil), oEntry...)
	if r >= 3 {
		for i := 19; i >= 1; i-- {
			val = rc4Simple(xorKey(key, byte(i)), val)
		}
	}
	return rc4Simple(key, val)
}

// makeUserEntry computes the U verification entry from the file key.
func makeUserEntry(fileKey, fileID []byte, r int) []byte {
	if r <= 2 {
		return rc4Simple(fileKey, passwordPadding)
	}
	sum := md5.Sum(append(append([]byte(nil), passwordPadding...), fileID...))
	val := rc4Simple(fileKey, sum[:])
	for i := 1; i <= 19; i++ {
		val = rc4Simple(xorKey(fileKey, byte(i)), val)
	}
	// Pad to 32 bytes; the tail is arbitrary.
	out := make([]byte, 32)
	copy(out, val)
	return out
}

func checkUserEntry(fileKey, uEntry, fileID []byte, r int) bool {
	if len(uEntry) < 16 {
		return false
	}
	expect := makeUserEntry(fileKey, fileID, r)
	return bytes.Equal(expect[:16], uEntry[:16])
}

func xorKey(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i, k := range key {
		out[i] = k ^ b
	}
	return out
}

// objectKey mixes the file key with the owning object's number and
// generation for revisions up to 4. AES-256 uses the file key directly.
func (h *Handler) objectKey(ref object.Ref, a algo) []byte {
	if h.r >= 5 {
		return h.key
	}
	buf := make([]byte, 0, len(h.key)+9)
	buf = append(buf, h.key...)
	buf = append(buf, byte(ref.Num), byte(ref.Num>>8), byte(ref.Num>>16))
	buf = append(buf, byte(ref.Gen), byte(ref.Gen>>8))
	if a == algoAESV2 {
		buf = append(buf, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	sum := md5.Sum(buf)
	n := len(h.key) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

func rc4Simple(key, data []byte) []byte {
	c, _ := rc4.NewCipher(key)
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func rc4Crypt(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesEncryptCBC encrypts with a random IV prefix and PKCS#7 padding, the
// layout the standard handler stores in the file.
func aesEncryptCBC(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	plain := make([]byte, len(data)+padLen)
	copy(plain, data)
	for i := len(data); i < len(plain); i++ {
		plain[i] = byte(padLen)
	}
	out := make([]byte, aes.BlockSize+len(plain))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], plain)
	return out, nil
}

func aesDecryptCBC(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes payload not block aligned")
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("invalid aes padding")
	}
	return out[:len(out)-pad], nil
}

// aesCBCZeroIV runs AES-CBC with a zero IV and no padding, used by the
// revision 6 key wrapping.
func aesCBCZeroIV(key, data []byte, encrypt bool) ([]byte, error) {
	return aesCBCIV(key, make([]byte, aes.BlockSize), data, encrypt)
}

func aesCBCIV(key, iv, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes payload not block aligned")
	}
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

// hashRev6 is the iterated hash for revision 6 authentication: SHA-256
// seeded, then 64+ rounds of AES-CBC over repeated input with the digest
// algorithm chosen by the ciphertext tail.
func hashRev6(pwd, salt, extra []byte) []byte {
	seed := make([]byte, 0, len(pwd)+len(salt)+len(extra))
	seed = append(seed, pwd...)
	seed = append(seed, salt...)
	seed = append(seed, extra...)
	sum := sha256.Sum256(seed)
	h := sum[:]

	var enc []byte
	for round := 0; round < 64 || int(enc[len(enc)-1]) > round-32; round++ {
		block := make([]byte, 0, 64*(len(pwd)+len(h)+len(extra)))
		for i := 0; i < 64; i++ {
			block = append(block, pwd...)
			block = append(block, h...)
			block = append(block, extra...)
		}
		var err error
		enc, err = aesCBCIV(h[:16], h[16:32], block, true)
		if err != nil {
			return h[:32]
		}
		// The first 16 bytes of the ciphertext, read as a big-endian
		// integer mod 3, select the next digest. 256 = 1 (mod 3), so the
		// byte sum gives the same residue.
		mod := 0
		for _, b := range enc[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(enc)
			h = s[:]
		case 1:
			s := sha512.Sum384(enc)
			h = s[:]
		default:
			s := sha512.Sum512(enc)
			h = s[:]
		}
	}
	return h[:32]
}
