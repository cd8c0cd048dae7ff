package crypto

import "errors"

var ErrEmptyPassphrase = errors.New("encryption passphrase is empty")

// KeyProvider выдает ключ для сообщений комнаты
type KeyProvider interface {
	KeyFor(roomID string) (Key, error)
}

// StaticKeyProvider отдает один ключ процесса для всех комнат
type StaticKeyProvider struct {
	key Key
}

// NewStaticKeyProvider выводит ключ один раз, дальше он не меняется
func NewStaticKeyProvider(passphrase string) (*StaticKeyProvider, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	return &StaticKeyProvider{key: DeriveKey(passphrase)}, nil
}

func (p *StaticKeyProvider) KeyFor(string) (Key, error) {
	return p.key, nil
}
