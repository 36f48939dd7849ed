package security

import (
	"crypto/rand"
	"fmt"

	"github.com/pdfdesk/pdfengine/object"
)

// ProtectConfig describes a fresh protection request.
type ProtectConfig struct {
	UserPassword  string
	OwnerPassword string
	Permissions   object.Permissions
	// Revision selects the handler revision: 4 (AES-128) or 6
	// (AES-256). Zero means 6.
	Revision        int
	EncryptMetadata bool
}

// Protect derives a new file key and builds the Encrypt dictionary for
// it. The returned handler encrypts payloads for the writer. An empty
// owner password falls back to the user password.
func Protect(cfg ProtectConfig, fileID []byte) (*Handler, error) {
	if cfg.OwnerPassword == "" {
		cfg.OwnerPassword = cfg.UserPassword
	}
	switch cfg.Revision {
	case 0, 6:
		return protectRev6(cfg)
	case 4:
		return protectRev4(cfg, fileID)
	default:
		return nil, fmt.Errorf("protect revision %d not supported", cfg.Revision)
	}
}

func protectRev4(cfg ProtectConfig, fileID []byte) (*Handler, error) {
	const keyLen = 16
	p := PermissionsValue(cfg.Permissions)
	oEntry := makeOwnerEntry([]byte(cfg.OwnerPassword), []byte(cfg.UserPassword), keyLen, 4)
	fileKey, err := legacyFileKey([]byte(cfg.UserPassword), oEntry, p, fileID, keyLen, 4)
	if err != nil {
		return nil, err
	}
	uEntry := makeUserEntry(fileKey, fileID, 4)

	stdCF := object.NewDict()
	stdCF.Set("CFM", object.Name("AESV2"))
	stdCF.Set("AuthEvent", object.Name("DocOpen"))
	stdCF.Set("Length", object.Int(keyLen))
	cf := object.NewDict()
	cf.Set("StdCF", stdCF)

	enc := object.NewDict()
	enc.Set("Filter", object.Name("Standard"))
	enc.Set("V", object.Int(4))
	enc.Set("R", object.Int(4))
	enc.Set("Length", object.Int(keyLen*8))
	enc.Set("CF", cf)
	enc.Set("StmF", object.Name("StdCF"))
	enc.Set("StrF", object.Name("StdCF"))
	enc.Set("O", object.Str(oEntry))
	enc.Set("U", object.Str(uEntry))
	enc.Set("P", object.Int(int64(p)))
	if !cfg.EncryptMetadata {
		enc.Set("EncryptMetadata", object.Boolean(false))
	}

	return &Handler{
		v:           4,
		r:           4,
		lengthBits:  keyLen * 8,
		key:         fileKey,
		oEntry:      oEntry,
		uEntry:      uEntry,
		p:           p,
		fileID:      fileID,
		encryptMeta: cfg.EncryptMetadata,
		streamAlgo:  algoAESV2,
		stringAlgo:  algoAESV2,
		encryptDict: enc,
		ownerAuthed: true,
	}, nil
}

func protectRev6(cfg ProtectConfig) (*Handler, error) {
	fileKey := make([]byte, 32)
	if _, err := rand.Read(fileKey); err != nil {
		return nil, err
	}
	p := PermissionsValue(cfg.Permissions)

	userPwd := prepPassword(cfg.UserPassword)
	uEntry, ue, err := wrapRev6Key(userPwd, fileKey, nil)
	if err != nil {
		return nil, err
	}
	ownerPwd := prepPassword(cfg.OwnerPassword)
	oEntry, oe, err := wrapRev6Key(ownerPwd, fileKey, uEntry[:48])
	if err != nil {
		return nil, err
	}
	perms, err := makePermsEntry(fileKey, p, cfg.EncryptMetadata)
	if err != nil {
		return nil, err
	}

	stdCF := object.NewDict()
	stdCF.Set("CFM", object.Name("AESV3"))
	stdCF.Set("AuthEvent", object.Name("DocOpen"))
	stdCF.Set("Length", object.Int(32))
	cf := object.NewDict()
	cf.Set("StdCF", stdCF)

	enc := object.NewDict()
	enc.Set("Filter", object.Name("Standard"))
	enc.Set("V", object.Int(5))
	enc.Set("R", object.Int(6))
	enc.Set("Length", object.Int(256))
	enc.Set("CF", cf)
	enc.Set("StmF", object.Name("StdCF"))
	enc.Set("StrF", object.Name("StdCF"))
	enc.Set("O", object.Str(oEntry))
	enc.Set("U", object.Str(uEntry))
	enc.Set("OE", object.Str(oe))
	enc.Set("UE", object.Str(ue))
	enc.Set("Perms", object.Str(perms))
	enc.Set("P", object.Int(int64(p)))
	if !cfg.EncryptMetadata {
		enc.Set("EncryptMetadata", object.Boolean(false))
	}

	return &Handler{
		v:           5,
		r:           6,
		lengthBits:  256,
		key:         fileKey,
		oEntry:      oEntry,
		uEntry:      uEntry,
		oe:          oe,
		ue:          ue,
		perms:       perms,
		p:           p,
		encryptMeta: cfg.EncryptMetadata,
		streamAlgo:  algoAESV3,
		stringAlgo:  algoAESV3,
		encryptDict: enc,
		ownerAuthed: true,
	}, nil
}

// wrapRev6Key builds the 48-byte verification entry and the 32-byte
// wrapped file key for one password (extra is the U entry when wrapping
// for the owner password).
func wrapRev6Key(pwd, fileKey, extra []byte) (entry, wrapped []byte, err error) {
	salts := make([]byte, 16)
	if _, err := rand.Read(salts); err != nil {
		return nil, nil, err
	}
	vSalt, kSalt := salts[:8], salts[8:]
	entry = make([]byte, 48)
	copy(entry[:32], hashRev6(pwd, vSalt, extra))
	copy(entry[32:40], vSalt)
	copy(entry[40:48], kSalt)
	wrapKey := hashRev6(pwd, kSalt, extra)
	wrapped, err = aesCBCZeroIV(wrapKey, fileKey, true)
	if err != nil {
		return nil, nil, err
	}
	return entry, wrapped, nil
}
