package repo

import (
	"crypto/rand"
	"encoding/json"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
	base32 "github.com/multiformats/go-base32"
	"golang.org/x/xerrors"
)

const kstrPermissionMsg = "permissions of key: '%s' are too relaxed, required: 0600, got: %#o"

func (fsr *fsLockedRepo) getKey(name string) (KeyInfo, error) {
	encName := base32.RawStdEncoding.EncodeToString([]byte(name))
	keyPath := fsr.join(fsKeystore, encName)

	fstat, err := os.Stat(keyPath)
	if os.IsNotExist(err) {
		return KeyInfo{}, xerrors.Errorf("opening key '%s': %w", name, ErrKeyInfoNotFound)
	} else if err != nil {
		return KeyInfo{}, xerrors.Errorf("opening key '%s': %w", name, err)
	}

	if fstat.Mode()&0077 != 0 {
		return KeyInfo{}, xerrors.Errorf(kstrPermissionMsg, name, fstat.Mode())
	}

	file, err := os.Open(keyPath)
	if err != nil {
		return KeyInfo{}, xerrors.Errorf("opening key '%s': %w", name, err)
	}
	defer file.Close() //nolint: errcheck // read only op

	var res KeyInfo
	err = json.NewDecoder(file).Decode(&res)
	if err != nil {
		return KeyInfo{}, xerrors.Errorf("decoding key '%s': %w", name, err)
	}

	return res, nil
}

func (fsr *fsLockedRepo) putKey(name string, info KeyInfo) error {
	encName := base32.RawStdEncoding.EncodeToString([]byte(name))
	keyPath := fsr.join(fsKeystore, encName)

	_, err := os.Stat(keyPath)
	if err == nil {
		return xerrors.Errorf("checking key before put '%s': %w", name, ErrKeyExists)
	} else if !os.IsNotExist(err) {
		return xerrors.Errorf("checking key before put '%s': %w", name, err)
	}

	keyData, err := json.Marshal(info)
	if err != nil {
		return xerrors.Errorf("encoding key '%s': %w", name, err)
	}

	err = os.WriteFile(keyPath, keyData, 0600)
	if err != nil {
		return xerrors.Errorf("writing key '%s': %w", name, err)
	}
	return nil
}

// Libp2pIdentity returns the repo's libp2p private key, generating and
// persisting a new one on first use.
func (fsr *fsLockedRepo) Libp2pIdentity() (crypto.PrivKey, error) {
	if err := fsr.stillValid(); err != nil {
		return nil, err
	}

	fsr.keyLk.Lock()
	defer fsr.keyLk.Unlock()

	ki, err := fsr.getKey(KTLibp2pHost)
	if err == nil {
		pk, err := crypto.UnmarshalPrivateKey(ki.PrivateKey)
		if err != nil {
			return nil, xerrors.Errorf("unmarshaling stored private key: %w", err)
		}
		return pk, nil
	}
	if !xerrors.Is(err, ErrKeyInfoNotFound) {
		return nil, err
	}

	pk, err := genLibp2pKey()
	if err != nil {
		return nil, xerrors.Errorf("generating private key: %w", err)
	}

	kbytes, err := crypto.MarshalPrivateKey(pk)
	if err != nil {
		return nil, xerrors.Errorf("marshaling private key: %w", err)
	}

	if err := fsr.putKey(KTLibp2pHost, KeyInfo{
		Type:       KTLibp2pHost,
		PrivateKey: kbytes,
	}); err != nil {
		return nil, xerrors.Errorf("storing private key: %w", err)
	}

	return pk, nil
}

func genLibp2pKey() (crypto.PrivKey, error) {
	pk, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}
	return pk, nil
}
