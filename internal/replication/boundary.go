// Package replication реализует границу репликации: декларацию
// зеркалируемых компонентов и событий, diff-рассылку авторитативного
// состояния с сервера и применение диффов на клиенте.
package replication

import (
	"github.com/annel0/movesync/internal/entity"
	"github.com/annel0/movesync/internal/protocol"
)

// ChannelClass класс надёжности доставки события
type ChannelClass int

const (
	ClassUnreliable ChannelClass = iota
	ClassReliableOrdered
)

// Declaration декларируется один раз на старте процесса: какие компоненты
// зеркалируются сервер -> клиенты и какие события пересекают границу.
type Declaration struct {
	// Компоненты, входящие в реплику
	Components []entity.Kind
	// События клиент -> сервер
	ClientEvents map[protocol.MsgType]ChannelClass
	// События сервер -> клиент (адресные)
	ServerEvents map[protocol.MsgType]ChannelClass
}

// DefaultDeclaration граница протокола движения: полная сущность Player
// (идентичность + позиция), интенты без гарантий, объявление идентичности
// по надёжному каналу.
func DefaultDeclaration() *Declaration {
	return &Declaration{
		Components: []entity.Kind{entity.KindPlayer, entity.KindPosition},
		ClientEvents: map[protocol.MsgType]ChannelClass{
			protocol.MsgMovementIntent: ClassUnreliable,
		},
		ServerEvents: map[protocol.MsgType]ChannelClass{
			protocol.MsgClientID: ClassReliableOrdered,
		},
	}
}

// Replicates проверяет, входит ли компонент в реплику
func (d *Declaration) Replicates(kind entity.Kind) bool {
	for _, k := range d.Components {
		if k == kind {
			return true
		}
	}
	return false
}

// ClientEventClass возвращает класс доставки события клиент -> сервер
func (d *Declaration) ClientEventClass(t protocol.MsgType) (ChannelClass, bool) {
	class, ok := d.ClientEvents[t]
	return class, ok
}
