package game

import (
	"math"
	"math/rand"

	"github.com/annel0/movesync/internal/vec"
)

// InputSource опрашивается кадровым циклом клиента один раз за кадр.
// Возвращает желаемое направление движения; нулевой вектор — стоять.
type InputSource interface {
	Sample() vec.Vec2Float
}

// NullInput источник без движения
type NullInput struct{}

func (NullInput) Sample() vec.Vec2Float { return vec.Vec2Float{} }

// InputStep шаг сценария: направление, удерживаемое заданное число кадров
type InputStep struct {
	Direction vec.Vec2Float
	Frames    int
}

// ScriptedInput проигрывает заранее заданную последовательность направлений.
// После исчерпания сценария возвращает нулевое направление.
type ScriptedInput struct {
	steps   []InputStep
	current int
	left    int
}

// NewScriptedInput создаёт сценарный источник ввода
func NewScriptedInput(steps []InputStep) *ScriptedInput {
	si := &ScriptedInput{steps: steps}
	if len(steps) > 0 {
		si.left = steps[0].Frames
	}
	return si
}

// Sample возвращает направление текущего шага сценария
func (si *ScriptedInput) Sample() vec.Vec2Float {
	for si.current < len(si.steps) && si.left <= 0 {
		si.current++
		if si.current < len(si.steps) {
			si.left = si.steps[si.current].Frames
		}
	}
	if si.current >= len(si.steps) {
		return vec.Vec2Float{}
	}
	si.left--
	return si.steps[si.current].Direction
}

// Done сообщает, исчерпан ли сценарий
func (si *ScriptedInput) Done() bool {
	return si.current >= len(si.steps) || (si.current == len(si.steps)-1 && si.left <= 0)
}

// RandomWalkInput меняет направление каждые holdFrames кадров.
// Используется демо-режимом: headless клиенту нужен хоть какой-то ввод.
type RandomWalkInput struct {
	holdFrames int
	left       int
	direction  vec.Vec2Float
	rng        *rand.Rand
}

// NewRandomWalkInput создаёт источник случайного блуждания
func NewRandomWalkInput(holdFrames int, seed int64) *RandomWalkInput {
	return &RandomWalkInput{
		holdFrames: holdFrames,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Sample возвращает текущее направление блуждания
func (rw *RandomWalkInput) Sample() vec.Vec2Float {
	if rw.left <= 0 {
		angle := rw.rng.Float64() * 2 * math.Pi
		rw.direction = vec.Vec2Float{X: math.Cos(angle), Y: math.Sin(angle)}
		// Иногда стоим на месте
		if rw.rng.Float64() < 0.25 {
			rw.direction = vec.Vec2Float{}
		}
		rw.left = rw.holdFrames
	}
	rw.left--
	return rw.direction
}
