// Package filter сглаживает сырые позиции устройств во времени.
// Для каждого устройства ведется фильтр Калмана с моделью постоянной
// скорости и 4-мерным состоянием (x, y, vx, vy).
package filter

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDiverged ковариация фильтра вышла за пределы разумного - фильтр
// сброшен и будет переинициализирован следующим измерением
var ErrDiverged = errors.New("kalman covariance diverged")

// Config параметры фильтра Калмана
type Config struct {
	ProcessNoise    float64 // спектральная плотность шума ускорения (м^2/с^3)
	MeasBaseVar     float64 // дисперсия измерения при уверенности 1.0 (м^2)
	MinConfidence   float64 // нижняя граница уверенности при расчете шума измерения
	InitPosVar      float64 // начальная дисперсия позиции (м^2)
	InitVelVar      float64 // начальная дисперсия скорости (м^2/с^2)
	MaxCovTrace     float64 // предел следа ковариации, дальше - сброс фильтра
	ConfTraceScaleM float64 // масштаб следа позиционной ковариации для уверенности
}

// DefaultConfig возвращает параметры фильтра по умолчанию
func DefaultConfig() Config {
	return Config{
		ProcessNoise:    0.5,
		MeasBaseVar:     1.0,
		MinConfidence:   0.05,
		InitPosVar:      4.0,
		InitVelVar:      1.0,
		MaxCovTrace:     1e4,
		ConfTraceScaleM: 2.0,
	}
}

// Kalman фильтр одного устройства. Не потокобезопасен: экземпляр
// принадлежит ровно одному устройству и обрабатывается одним воркером.
type Kalman struct {
	cfg         Config
	x           *mat.VecDense // [x, y, vx, vy]
	p           *mat.Dense    // ковариация ошибки 4x4
	initialized bool
}

// NewKalman создает фильтр для одного устройства
func NewKalman(cfg Config) *Kalman {
	if cfg.ProcessNoise <= 0 {
		cfg.ProcessNoise = 0.5
	}
	if cfg.MeasBaseVar <= 0 {
		cfg.MeasBaseVar = 1.0
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.05
	}
	if cfg.MaxCovTrace <= 0 {
		cfg.MaxCovTrace = 1e4
	}
	if cfg.ConfTraceScaleM <= 0 {
		cfg.ConfTraceScaleM = 2.0
	}
	return &Kalman{
		cfg: cfg,
		x:   mat.NewVecDense(4, nil),
		p:   mat.NewDense(4, 4, nil),
	}
}

// Initialized сообщает, получил ли фильтр хотя бы одно измерение
func (k *Kalman) Initialized() bool {
	return k.initialized
}

// Reset возвращает фильтр в неинициализированное состояние
func (k *Kalman) Reset() {
	k.initialized = false
	k.x.Zero()
	k.p.Zero()
}

// Predict продвигает состояние на dt секунд по модели постоянной
// скорости и раздувает ковариацию процессным шумом, пропорциональным
// прошедшему времени. Без измерений оценка сохраняется, но уверенность
// в ней падает.
func (k *Kalman) Predict(dt float64) error {
	if !k.initialized || dt <= 0 {
		return nil
	}

	f := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	// Дискретизация модели белого шума ускорения
	qa := k.cfg.ProcessNoise
	q3 := dt * dt * dt / 3 * qa
	q2 := dt * dt / 2 * qa
	q1 := dt * qa
	q := mat.NewDense(4, 4, []float64{
		q3, 0, q2, 0,
		0, q3, 0, q2,
		q2, 0, q1, 0,
		0, q2, 0, q1,
	})

	var xNew mat.VecDense
	xNew.MulVec(f, k.x)
	k.x.CopyVec(&xNew)

	var fp, fpf mat.Dense
	fp.Mul(f, k.p)
	fpf.Mul(&fp, f.T())
	k.p.Add(&fpf, q)

	k.symmetrize()
	return k.checkSanity()
}

// Update корректирует состояние новым измерением позиции. Дисперсия
// шума измерения обратно пропорциональна уверенности источника:
// менее надежное измерение корректирует слабее.
func (k *Kalman) Update(x, y, confidence float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return fmt.Errorf("non-finite measurement (%f, %f)", x, y)
	}

	if !k.initialized {
		k.x.SetVec(0, x)
		k.x.SetVec(1, y)
		k.x.SetVec(2, 0)
		k.x.SetVec(3, 0)
		k.p.Zero()
		k.p.Set(0, 0, k.cfg.InitPosVar)
		k.p.Set(1, 1, k.cfg.InitPosVar)
		k.p.Set(2, 2, k.cfg.InitVelVar)
		k.p.Set(3, 3, k.cfg.InitVelVar)
		k.initialized = true
		return nil
	}

	conf := confidence
	if conf < k.cfg.MinConfidence {
		conf = k.cfg.MinConfidence
	}
	r := k.cfg.MeasBaseVar / conf

	h := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})

	// S = H P H^T + R
	var hp, s mat.Dense
	hp.Mul(h, k.p)
	s.Mul(&hp, h.T())
	s.Set(0, 0, s.At(0, 0)+r)
	s.Set(1, 1, s.At(1, 1)+r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		k.Reset()
		return fmt.Errorf("%w: innovation covariance not invertible: %v", ErrDiverged, err)
	}

	// K = P H^T S^-1
	var pht, gain mat.Dense
	pht.Mul(k.p, h.T())
	gain.Mul(&pht, &sInv)

	// x = x + K (z - H x)
	innov := mat.NewVecDense(2, []float64{
		x - k.x.AtVec(0),
		y - k.x.AtVec(1),
	})
	var corr mat.VecDense
	corr.MulVec(&gain, innov)
	k.x.AddVec(k.x, &corr)

	// P = (I - K H) P
	var kh mat.Dense
	kh.Mul(&gain, h)
	ikh := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		ikh.Set(i, i, 1)
	}
	ikh.Sub(ikh, &kh)
	var pNew mat.Dense
	pNew.Mul(ikh, k.p)
	k.p.Copy(&pNew)

	k.symmetrize()
	return k.checkSanity()
}

// Position возвращает текущую сглаженную позицию
func (k *Kalman) Position() (x, y float64) {
	return k.x.AtVec(0), k.x.AtVec(1)
}

// Velocity возвращает текущую оценку скорости (м/с)
func (k *Kalman) Velocity() (vx, vy float64) {
	return k.x.AtVec(2), k.x.AtVec(3)
}

// PositionCovTrace возвращает след позиционной части ковариации
func (k *Kalman) PositionCovTrace() float64 {
	return k.p.At(0, 0) + k.p.At(1, 1)
}

// Confidence возвращает уверенность в сглаженной позиции: монотонно
// убывающую функцию следа позиционной ковариации, в пределах [0, 1]
func (k *Kalman) Confidence() float64 {
	if !k.initialized {
		return 0
	}
	trace := k.PositionCovTrace()
	if trace < 0 {
		trace = 0
	}
	return k.cfg.ConfTraceScaleM / (k.cfg.ConfTraceScaleM + trace)
}

// symmetrize восстанавливает симметрию ковариации после численных ошибок
func (k *Kalman) symmetrize() {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			avg := (k.p.At(i, j) + k.p.At(j, i)) / 2
			k.p.Set(i, j, avg)
			k.p.Set(j, i, avg)
		}
	}
}

// checkSanity сбрасывает фильтр при расходимости ковариации
func (k *Kalman) checkSanity() error {
	trace := k.p.At(0, 0) + k.p.At(1, 1) + k.p.At(2, 2) + k.p.At(3, 3)
	if math.IsNaN(trace) || trace > k.cfg.MaxCovTrace {
		k.Reset()
		return fmt.Errorf("%w: covariance trace %g", ErrDiverged, trace)
	}
	for i := 0; i < 4; i++ {
		if k.p.At(i, i) < 0 {
			k.Reset()
			return fmt.Errorf("%w: negative variance at state %d", ErrDiverged, i)
		}
	}
	return nil
}
