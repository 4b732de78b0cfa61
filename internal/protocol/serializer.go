package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Максимальный размер кадра: защита от мусорного заголовка длины
const maxFrameSize = 1 << 20

// MessageSerializer предоставляет функции для сериализации и десериализации
// сообщений. Полезная нагрузка — JSON; конверт — JSON с 4-байтовым
// little-endian заголовком длины на потоковых каналах.
type MessageSerializer struct {
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewMessageSerializer создает новый сериализатор сообщений
func NewMessageSerializer() (*MessageSerializer, error) {
	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания компрессора: %w", err)
	}

	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания декомпрессора: %w", err)
	}

	return &MessageSerializer{
		compressor:   compressor,
		decompressor: decompressor,
	}, nil
}

// Close освобождает ресурсы компрессии
func (ms *MessageSerializer) Close() error {
	ms.compressor.Close()
	ms.decompressor.Close()
	return nil
}

// NewGameMsg собирает сообщение с JSON-нагрузкой
func NewGameMsg(msgType MsgType, sender uint64, flags NetFlags, payload interface{}) (*GameMsg, error) {
	payloadData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации полезной нагрузки: %w", err)
	}

	return &GameMsg{
		Type:      msgType,
		Timestamp: time.Now().UnixNano(),
		Sender:    sender,
		Flags:     flags,
		Payload:   payloadData,
	}, nil
}

// SerializeMessage сериализует сообщение в байты, применяя сжатие нагрузки
// если оно запрошено в msg.Compression
func (ms *MessageSerializer) SerializeMessage(msg *GameMsg) ([]byte, error) {
	if msg.Compression == CompressionZstd && len(msg.Payload) > 0 {
		compressed := ms.compressor.EncodeAll(msg.Payload, nil)
		// Копия конверта: исходное сообщение не мутируем
		clone := *msg
		clone.Payload = compressed
		msg = &clone
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации сообщения: %w", err)
	}
	return data, nil
}

// DeserializeMessage десериализует данные в GameMsg, распаковывая нагрузку
func (ms *MessageSerializer) DeserializeMessage(data []byte) (*GameMsg, error) {
	var msg GameMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации сообщения: %w", err)
	}

	if msg.Compression == CompressionZstd && len(msg.Payload) > 0 {
		decompressed, err := ms.decompressor.DecodeAll(msg.Payload, nil)
		if err != nil {
			return nil, fmt.Errorf("ошибка декомпрессии нагрузки: %w", err)
		}
		msg.Payload = decompressed
		msg.Compression = CompressionNone
	}

	return &msg, nil
}

// DeserializePayload десериализует полезную нагрузку сообщения в указанный тип
func (ms *MessageSerializer) DeserializePayload(msg *GameMsg, payload interface{}) error {
	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		return fmt.Errorf("ошибка десериализации полезной нагрузки: %w", err)
	}
	return nil
}

// WriteFrame пишет кадр с 4-байтовым little-endian заголовком длины
func WriteFrame(w io.Writer, data []byte) error {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(data)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("ошибка записи заголовка кадра: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("ошибка записи кадра: %w", err)
	}
	return nil
}

// ReadFrame читает один кадр из потока
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header)
	if length == 0 {
		return nil, fmt.Errorf("пустой кадр")
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("кадр слишком большой: %d байт", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
