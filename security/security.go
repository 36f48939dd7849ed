// Package security implements the standard security handler: password
// based encryption of string and stream payloads with per-object key
// derivation (revisions 2-4) and AES-256 (revision 6).
package security

import (
	"errors"
	"fmt"

	"github.com/pdfdesk/pdfengine/object"
)

// AuthError reports a failed password check. It is terminal: the engine
// never retries authentication on its own.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Reason }

// IsAuthError reports whether err is a failed password check.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

type algo int

const (
	algoNone algo = iota
	algoRC4
	algoAESV2 // AES-128 CBC
	algoAESV3 // AES-256 CBC
)

// Handler holds the encryption state of one document: file key, revision,
// and the stream/string cipher selection. It is computed once at open or
// protect time and then consumed by the codec and the writer.
type Handler struct {
	v          int
	r          int
	lengthBits int
	key        []byte

	oEntry []byte
	uEntry []byte
	oe     []byte
	ue     []byte
	perms  []byte
	p      int32
	fileID []byte

	encryptMeta  bool
	streamAlgo   algo
	stringAlgo   algo
	cryptFilters map[string]algo

	encryptDict *object.Dict
	ownerAuthed bool
}

// Open builds a handler from a parsed Encrypt dictionary and
// authenticates the supplied password against the stored verification
// hashes. The user password is tried first, then the owner password.
func Open(encDict *object.Dict, fileID []byte, password string) (*Handler, error) {
	h, err := fromDict(encDict, fileID)
	if err != nil {
		return nil, err
	}
	if err := h.authenticate(password); err != nil {
		return nil, err
	}
	return h, nil
}

func fromDict(encDict *object.Dict, fileID []byte) (*Handler, error) {
	if filter, ok := encDict.GetName("Filter"); ok && filter != "Standard" {
		return nil, fmt.Errorf("security handler %q not supported", filter)
	}
	v := int64(1)
	if n, ok := encDict.GetInt("V"); ok && n > 0 {
		v = n
	}
	r := int64(2)
	if n, ok := encDict.GetInt("R"); ok && n > 0 {
		r = n
	}
	if v > 5 || r > 6 || r == 5 {
		return nil, fmt.Errorf("encryption V=%d R=%d not supported", v, r)
	}
	lengthBits := 40
	if v >= 5 {
		lengthBits = 256
	}
	if n, ok := encDict.GetInt("Length"); ok && n > 0 {
		lengthBits = int(n)
	}
	if lengthBits%8 != 0 {
		return nil, errors.New("encryption key length must be a multiple of 8")
	}

	h := &Handler{
		v:           int(v),
		r:           int(r),
		lengthBits:  lengthBits,
		fileID:      fileID,
		encryptMeta: true,
		encryptDict: encDict,
	}
	h.oEntry, _ = encDict.GetString("O")
	h.uEntry, _ = encDict.GetString("U")
	h.oe, _ = encDict.GetString("OE")
	h.ue, _ = encDict.GetString("UE")
	h.perms, _ = encDict.GetString("Perms")
	if p, ok := encDict.GetInt("P"); ok {
		h.p = int32(p)
	}
	if em, ok := encDict.GetBool("EncryptMetadata"); ok {
		h.encryptMeta = em
	}

	base := algoRC4
	if v >= 5 {
		base = algoAESV3
	} else if v == 4 {
		base = algoAESV2
	}
	var err error
	h.cryptFilters, err = parseCryptFilters(encDict, base)
	if err != nil {
		return nil, err
	}
	h.streamAlgo, err = resolveAlgo(encDict, "StmF", base, h.cryptFilters)
	if err != nil {
		return nil, err
	}
	h.stringAlgo, err = resolveAlgo(encDict, "StrF", base, h.cryptFilters)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handler) authenticate(password string) error {
	if h.r == 6 {
		return h.authenticateRev6(password)
	}
	// Try as user password.
	key, err := legacyFileKey([]byte(password), h.oEntry, h.p, h.fileID, h.lengthBits/8, h.r)
	if err != nil {
		return err
	}
	if checkUserEntry(key, h.uEntry, h.fileID, h.r) {
		h.key = key
		return nil
	}
	// Try as owner password: recover the user password from O.
	userPwd := recoverUserPassword([]byte(password), h.oEntry, h.lengthBits/8, h.r)
	key, err = legacyFileKey(userPwd, h.oEntry, h.p, h.fileID, h.lengthBits/8, h.r)
	if err != nil {
		return err
	}
	if checkUserEntry(key, h.uEntry, h.fileID, h.r) {
		h.key = key
		h.ownerAuthed = true
		return nil
	}
	return &AuthError{Reason: "wrong password"}
}

// Revision returns the security handler revision in effect.
func (h *Handler) Revision() int { return h.r }

// OwnerAuthenticated reports whether the owner password matched.
func (h *Handler) OwnerAuthenticated() bool { return h.ownerAuthed }

// EncryptMetadata reports whether the metadata stream is encrypted.
func (h *Handler) EncryptMetadata() bool { return h.encryptMeta }

// FileID returns the document ID the keys were derived against.
func (h *Handler) FileID() []byte { return h.fileID }

// EncryptDict returns the Encrypt dictionary describing this handler.
func (h *Handler) EncryptDict() *object.Dict { return h.encryptDict }

// Permissions expands the permission bitmask.
func (h *Handler) Permissions() object.Permissions {
	return object.Permissions{
		Print:             h.p&(1<<2) != 0,
		Modify:            h.p&(1<<3) != 0,
		Copy:              h.p&(1<<4) != 0,
		ModifyAnnotations: h.p&(1<<5) != 0,
		FillForms:         h.p&(1<<8) != 0,
		ExtractAccessible: h.p&(1<<9) != 0,
		Assemble:          h.p&(1<<10) != 0,
		PrintHighQuality:  h.p&(1<<11) != 0,
	}
}

// PermissionsValue packs a permission set into the P bitmask: all
// reserved bits set, bits 1-2 clear.
func PermissionsValue(p object.Permissions) int32 {
	val := int32(-4)
	if !p.Print {
		val &^= 1 << 2
	}
	if !p.Modify {
		val &^= 1 << 3
	}
	if !p.Copy {
		val &^= 1 << 4
	}
	if !p.ModifyAnnotations {
		val &^= 1 << 5
	}
	if !p.FillForms {
		val &^= 1 << 8
	}
	if !p.ExtractAccessible {
		val &^= 1 << 9
	}
	if !p.Assemble {
		val &^= 1 << 10
	}
	if !p.PrintHighQuality {
		val &^= 1 << 11
	}
	return val
}

// DecryptString decrypts a string payload owned by the given object.
func (h *Handler) DecryptString(ref object.Ref, data []byte) ([]byte, error) {
	return h.crypt(h.stringAlgo, ref, data, false)
}

// DecryptStream decrypts a stream payload owned by the given object.
func (h *Handler) DecryptStream(ref object.Ref, data []byte) ([]byte, error) {
	return h.crypt(h.streamAlgo, ref, data, false)
}

// EncryptString encrypts a string payload for the given object.
func (h *Handler) EncryptString(ref object.Ref, data []byte) ([]byte, error) {
	return h.crypt(h.stringAlgo, ref, data, true)
}

// EncryptStream encrypts a stream payload for the given object.
func (h *Handler) EncryptStream(ref object.Ref, data []byte) ([]byte, error) {
	return h.crypt(h.streamAlgo, ref, data, true)
}

func (h *Handler) crypt(a algo, ref object.Ref, data []byte, encrypt bool) ([]byte, error) {
	if a == algoNone || len(data) == 0 {
		return data, nil
	}
	key := h.objectKey(ref, a)
	switch a {
	case algoRC4:
		return rc4Crypt(key, data)
	case algoAESV2, algoAESV3:
		if encrypt {
			return aesEncryptCBC(key, data)
		}
		return aesDecryptCBC(key, data)
	}
	return nil, fmt.Errorf("cipher %d not supported", a)
}

func parseCryptFilters(encDict *object.Dict, base algo) (map[string]algo, error) {
	out := make(map[string]algo)
	cf, ok := encDict.GetDict("CF")
	if !ok {
		return out, nil
	}
	for _, name := range cf.Keys() {
		entry, ok := cf.GetDict(name)
		if !ok {
			return nil, errors.New("crypt filter entry must be a dictionary")
		}
		a := base
		if cfm, ok := entry.GetName("CFM"); ok {
			switch cfm {
			case "V2":
				a = algoRC4
			case "AESV2":
				a = algoAESV2
			case "AESV3":
				a = algoAESV3
			case "None":
				a = algoNone
			default:
				return nil, fmt.Errorf("crypt filter method %q not supported", cfm)
			}
		}
		out[string(name)] = a
	}
	return out, nil
}

func resolveAlgo(encDict *object.Dict, key object.Name, base algo, filters map[string]algo) (algo, error) {
	name, ok := encDict.GetName(key)
	if !ok || name == "" {
		return base, nil
	}
	if name == "Identity" {
		return algoNone, nil
	}
	if a, ok := filters[string(name)]; ok {
		return a, nil
	}
	return algoNone, fmt.Errorf("crypt filter %q not defined", name)
}
