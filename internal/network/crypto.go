package network

import (
	"crypto/sha1"
	"fmt"

	"github.com/xtaci/kcp-go/v5"
	"golang.org/x/crypto/pbkdf2"
)

// Соль фиксирована: обе стороны выводят один ключ из общей фразы.
// Это транспортное шифрование уровня "self-signed" — защита от случайного
// трафика, не полноценный PKI.
const cryptSalt = "movesync-transport"

// NewBlockCrypt выводит AES ключ из pre-shared фразы и создаёт BlockCrypt
// для KCP. Ошибка здесь фатальна на старте процесса.
func NewBlockCrypt(passphrase string) (kcp.BlockCrypt, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("пустая ключевая фраза транспорта")
	}

	key := pbkdf2.Key([]byte(passphrase), []byte(cryptSalt), 1024, 32, sha1.New)
	block, err := kcp.NewAESBlockCrypt(key)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES block crypt: %w", err)
	}
	return block, nil
}
