package models

import (
	"fmt"
)

// Zone представляет именованную полигональную зону на плане здания
type Zone struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Vertices []Point `json:"vertices"` // Упорядоченные вершины простого полигона
	Color    string  `json:"color,omitempty"`
	Enabled  bool    `json:"enabled"`
}

// Validate проверяет корректность конфигурации зоны.
// Полигон с менее чем тремя вершинами - ошибка конфигурации.
func (z *Zone) Validate() error {
	if z.ID == "" {
		return fmt.Errorf("zone id is required")
	}
	if len(z.Vertices) < 3 {
		return fmt.Errorf("zone %s: polygon requires at least 3 vertices, got %d", z.ID, len(z.Vertices))
	}
	for i, v := range z.Vertices {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("zone %s: vertex %d: %w", z.ID, i, err)
		}
	}
	return nil
}

// ContainsPoint проверяет принадлежность точки полигону методом
// ray casting (правило четности пересечений). Луч идет вправо от точки.
// Граничные случаи детерминированы полуоткрытым правилом (y > min, y <= max):
// точка на нижней горизонтальной грани считается снаружи, на верхней -
// внутри; повторные вызовы с теми же аргументами дают тот же результат.
func (z *Zone) ContainsPoint(x, y float64) bool {
	n := len(z.Vertices)
	if n < 3 {
		return false
	}

	inside := false
	p1 := z.Vertices[0]

	for i := 1; i <= n; i++ {
		p2 := z.Vertices[i%n]

		if y > min(p1.Y, p2.Y) && y <= max(p1.Y, p2.Y) && x <= max(p1.X, p2.X) {
			var xinters float64
			if p1.Y != p2.Y {
				xinters = (y-p1.Y)*(p2.X-p1.X)/(p2.Y-p1.Y) + p1.X
			}
			if p1.X == p2.X || x <= xinters {
				inside = !inside
			}
		}

		p1 = p2
	}

	return inside
}
