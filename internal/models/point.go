package models

import (
	"fmt"
	"math"
)

// Point представляет точку на плане здания в метрах
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Validate проверяет корректность координат
func (p Point) Validate() error {
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) {
		return fmt.Errorf("invalid x coordinate: %f", p.X)
	}
	if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
		return fmt.Errorf("invalid y coordinate: %f", p.Y)
	}
	return nil
}

// DistanceTo вычисляет евклидово расстояние до другой точки в метрах
func (p Point) DistanceTo(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Bounds представляет прямоугольные границы плана
type Bounds struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// Validate проверяет корректность границ
func (b Bounds) Validate() error {
	if err := b.Min.Validate(); err != nil {
		return fmt.Errorf("min: %w", err)
	}
	if err := b.Max.Validate(); err != nil {
		return fmt.Errorf("max: %w", err)
	}
	if b.Min.X > b.Max.X || b.Min.Y > b.Max.Y {
		return fmt.Errorf("min corner must not exceed max corner")
	}
	return nil
}

// Contains проверяет, содержится ли точка в границах
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Center возвращает центральную точку границ
func (b Bounds) Center() Point {
	return Point{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
	}
}
