package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// Config параметры решателя позиций
type Config struct {
	SingularEps     float64        // порог детерминанта/разброса для вырожденной геометрии
	ResidualScaleM  float64        // масштаб остаточной ошибки для уверенности (метры)
	SpreadRefM2     float64        // опорная дисперсия позиций сенсоров (м^2)
	CountSaturation int            // число сенсоров, при котором фактор количества насыщается
	PlanBounds      *models.Bounds // границы плана здания; nil - не ограничивать
}

// DefaultConfig возвращает параметры решателя по умолчанию
func DefaultConfig() Config {
	return Config{
		SingularEps:     1e-6,
		ResidualScaleM:  5.0,
		SpreadRefM2:     4.0,
		CountSaturation: 5,
	}
}

// Solver вычисляет сырую позицию устройства из снимка его показаний
type Solver struct {
	cfg    Config
	logger *utils.Logger
}

// NewSolver создает новый решатель
func NewSolver(cfg Config, logger *utils.Logger) *Solver {
	if cfg.SingularEps <= 0 {
		cfg.SingularEps = 1e-6
	}
	if cfg.ResidualScaleM <= 0 {
		cfg.ResidualScaleM = 5.0
	}
	if cfg.SpreadRefM2 <= 0 {
		cfg.SpreadRefM2 = 4.0
	}
	if cfg.CountSaturation < 3 {
		cfg.CountSaturation = 5
	}
	return &Solver{cfg: cfg, logger: logger}
}

// rangeObs одно дистанционное наблюдение: позиция сенсора и расстояние
type rangeObs struct {
	pos  models.Point
	dist float64
}

// Solve вычисляет позицию устройства из его неустаревших показаний.
// Показания разделяются по модальности: координатные комбинируются
// взвешенным средним, RSSI решаются мультилатерацией, при наличии
// обоих кандидатов результаты сливаются.
//
// Возвращает ErrInsufficientSensors, когда данных мало для любого метода,
// и ErrSingularGeometry, когда система уравнений вырождена - оба случая
// означают "позиции нет", не "позиция с нулевой уверенностью".
func (s *Solver) Solve(deviceID string, readings []*models.Reading, sensors map[string]*models.Sensor) (*models.RawPosition, error) {
	var ranges []rangeObs
	var direct []*models.Reading

	for _, r := range readings {
		sensor, ok := sensors[r.SensorID]
		if !ok || !sensor.Enabled {
			continue
		}

		switch sensor.Modality {
		case models.ModalitySignalStrength:
			if r.RSSI == nil {
				continue
			}
			dist, err := RSSIToDistance(*r.RSSI, sensor.Calibration)
			if err != nil {
				s.logger.WithFields(map[string]interface{}{
					"device_id": deviceID,
					"sensor_id": r.SensorID,
					"error":     err,
				}).Warn("Skipping unusable signal-strength reading")
				continue
			}
			ranges = append(ranges, rangeObs{pos: sensor.Location, dist: dist})
		case models.ModalityDirectCoordinate:
			if r.Position != nil {
				direct = append(direct, r)
			}
		}
	}

	directPos := s.combineDirect(direct)

	var multiPos *models.RawPosition
	var multiErr error
	if len(ranges) >= 3 {
		multiPos, multiErr = s.multilaterate(ranges)
		if multiErr != nil {
			s.logger.WithFields(map[string]interface{}{
				"device_id":    deviceID,
				"sensor_count": len(ranges),
				"error":        multiErr,
			}).Debug("Multilateration failed")
		}
	}

	switch {
	case directPos != nil && multiPos != nil:
		return s.clampToPlan(s.fuse(directPos, multiPos)), nil
	case directPos != nil:
		return s.clampToPlan(directPos), nil
	case multiPos != nil:
		return s.clampToPlan(multiPos), nil
	case multiErr != nil:
		return nil, multiErr
	default:
		return nil, fmt.Errorf("%w: %d ranging, %d direct readings for device %s",
			ErrInsufficientSensors, len(ranges), len(direct), deviceID)
	}
}

// combineDirect комбинирует координатные показания взвешенным по
// уверенности средним. Итоговая уверенность - взвешенная комбинация,
// никогда не превышающая максимальную входную.
func (s *Solver) combineDirect(readings []*models.Reading) *models.RawPosition {
	if len(readings) == 0 {
		return nil
	}

	var sumW, sumWX, sumWY, sumWC float64
	for _, r := range readings {
		w := r.Confidence
		if w <= 0 {
			w = 1e-3
		}
		sumW += w
		sumWX += w * r.Position.X
		sumWY += w * r.Position.Y
		sumWC += w * r.Confidence
	}

	return &models.RawPosition{
		X:           sumWX / sumW,
		Y:           sumWY / sumW,
		Confidence:  clamp01(sumWC / sumW),
		SensorCount: len(readings),
		Method:      models.MethodDirect,
	}
}

// multilaterate решает задачу мультилатерации линеаризацией: уравнение
// окружности каждого сенсора вычитается из уравнения опорного (первого),
// давая линейную систему в (x, y). Ровно 3 сенсора решаются напрямую
// через 2x2 определитель, больше - методом наименьших квадратов.
func (s *Solver) multilaterate(obs []rangeObs) (*models.RawPosition, error) {
	n := len(obs)
	if n < 3 {
		return nil, fmt.Errorf("%w: need at least 3 ranging sensors, got %d", ErrInsufficientSensors, n)
	}

	spread := positionSpread(obs)
	if spread < s.cfg.SingularEps {
		return nil, fmt.Errorf("%w: sensors are collinear (spread %g)", ErrSingularGeometry, spread)
	}

	ref := obs[0]
	refSq := ref.pos.X*ref.pos.X + ref.pos.Y*ref.pos.Y

	rows := n - 1
	a := make([]float64, 0, rows*2)
	b := make([]float64, 0, rows)
	for _, o := range obs[1:] {
		a = append(a,
			2*(o.pos.X-ref.pos.X),
			2*(o.pos.Y-ref.pos.Y),
		)
		b = append(b,
			(o.pos.X*o.pos.X+o.pos.Y*o.pos.Y-refSq)+(ref.dist*ref.dist-o.dist*o.dist),
		)
	}

	var x, y float64
	if rows == 2 {
		// Прямое решение 2x2
		det := a[0]*a[3] - a[1]*a[2]
		if math.Abs(det) < s.cfg.SingularEps {
			return nil, fmt.Errorf("%w: determinant %g below epsilon", ErrSingularGeometry, det)
		}
		x = (b[0]*a[3] - b[1]*a[1]) / det
		y = (a[0]*b[1] - a[2]*b[0]) / det
	} else {
		// Переопределенная система - наименьшие квадраты
		A := mat.NewDense(rows, 2, a)
		bv := mat.NewVecDense(rows, b)
		var sol mat.VecDense
		if err := sol.SolveVec(A, bv); err != nil {
			return nil, fmt.Errorf("%w: least squares: %v", ErrSingularGeometry, err)
		}
		x = sol.AtVec(0)
		y = sol.AtVec(1)
	}

	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return nil, fmt.Errorf("%w: non-finite solution", ErrSingularGeometry)
	}

	return &models.RawPosition{
		X:           x,
		Y:           y,
		Confidence:  s.confidence(models.Point{X: x, Y: y}, obs, spread),
		SensorCount: n,
		Method:      models.MethodMultilateration,
	}, nil
}

// confidence оценивает уверенность решения мультилатерации по трем
// мультипликативным факторам: остаточной ошибке, геометрическому
// разбросу сенсоров и числу сенсоров.
func (s *Solver) confidence(p models.Point, obs []rangeObs, spread float64) float64 {
	// (a) RMS расхождения решения с измеренными расстояниями
	var sumSq float64
	for _, o := range obs {
		diff := p.DistanceTo(o.pos) - o.dist
		sumSq += diff * diff
	}
	rms := math.Sqrt(sumSq / float64(len(obs)))
	residualFactor := clamp01(1 - rms/s.cfg.ResidualScaleM)

	// (b) Грубый аналог DOP: отношение наименьшей главной дисперсии
	// расположения сенсоров к опорной
	spreadFactor := clamp01(spread / s.cfg.SpreadRefM2)

	// (c) Больше сенсоров - выше доверие, с насыщением
	countFactor := clamp01(float64(len(obs)) / float64(s.cfg.CountSaturation))

	return clamp01(residualFactor * spreadFactor * countFactor)
}

// fuse сливает прямую и мультилатерационную оценки взвешенным по
// уверенности средним. Уверенность результата - взвешенное среднее
// входных, не произведение: согласие источников не наказывается.
func (s *Solver) fuse(direct, multi *models.RawPosition) *models.RawPosition {
	wd := direct.Confidence
	wm := multi.Confidence
	if wd <= 0 && wm <= 0 {
		wd, wm = 1, 1
	}
	total := wd + wm

	return &models.RawPosition{
		X:           (direct.X*wd + multi.X*wm) / total,
		Y:           (direct.Y*wd + multi.Y*wm) / total,
		Confidence:  clamp01((direct.Confidence*wd + multi.Confidence*wm) / total),
		SensorCount: direct.SensorCount + multi.SensorCount,
		Method:      models.MethodFused,
	}
}

// clampToPlan прижимает оценку к границам плана здания. Решение за
// пределами плана физически невозможно и обычно означает грубую ошибку
// дальностей, поэтому координаты обрезаются по ближайшей границе.
func (s *Solver) clampToPlan(p *models.RawPosition) *models.RawPosition {
	b := s.cfg.PlanBounds
	if b == nil || b.Contains(models.Point{X: p.X, Y: p.Y}) {
		return p
	}
	p.X = math.Min(math.Max(p.X, b.Min.X), b.Max.X)
	p.Y = math.Min(math.Max(p.Y, b.Min.Y), b.Max.Y)
	return p
}

// positionSpread возвращает наименьшую главную дисперсию расположения
// сенсоров: для коллинеарных конфигураций она стремится к нулю.
func positionSpread(obs []rangeObs) float64 {
	n := float64(len(obs))
	var mx, my float64
	for _, o := range obs {
		mx += o.pos.X
		my += o.pos.Y
	}
	mx /= n
	my /= n

	var sxx, syy, sxy float64
	for _, o := range obs {
		dx := o.pos.X - mx
		dy := o.pos.Y - my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	sxx /= n
	syy /= n
	sxy /= n

	// Наименьшее собственное значение ковариационной матрицы 2x2
	tr := sxx + syy
	det := sxx*syy - sxy*sxy
	disc := tr*tr/4 - det
	if disc < 0 {
		disc = 0
	}
	return tr/2 - math.Sqrt(disc)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
