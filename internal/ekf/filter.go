// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ekf is the attitude Extended Kalman Filter.
//
// The state is [roll, pitch, yaw, bx, by, bz]: Euler angles (radians, NED,
// each in (-π, π]) and the gyro bias (rad/s). The gyro drives Predict; the
// accelerometer (gravity direction) and the tilt-compensated magnetic
// heading correct it.
//
// A Filter is not safe for concurrent use. One goroutine owns it and runs
// predict plus its updates as a single step.
package ekf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/orientation"
)

// Indices into the state vector and covariance.
const (
	Roll = iota
	Pitch
	Yaw
	BiasX
	BiasY
	BiasZ

	StateSize
)

// State is the filter estimate. Angles in radians, Bias in rad/s.
type State struct {
	Roll, Pitch, Yaw float64
	Bias             geom.Vec3
}

func (s State) vector() [StateSize]float64 {
	return [StateSize]float64{s.Roll, s.Pitch, s.Yaw, s.Bias[0], s.Bias[1], s.Bias[2]}
}

func stateFromVector(x [StateSize]float64) State {
	return State{Roll: x[Roll], Pitch: x[Pitch], Yaw: x[Yaw], Bias: geom.Vec3{x[BiasX], x[BiasY], x[BiasZ]}}
}

func (s State) isFinite() bool {
	return geom.Vec3{s.Roll, s.Pitch, s.Yaw}.IsFinite() && s.Bias.IsFinite()
}

// Filter owns one attitude state and its covariance.
type Filter struct {
	cfg      Config
	resolver orientation.Resolver

	x State
	p *mat.SymDense

	rAccel *mat.SymDense
	rMag   *mat.SymDense

	initialized bool
	diverged    bool
	flips       uint64
}

// New validates cfg and returns an uninitialized filter.
func New(cfg Config) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Filter{
		cfg:      cfg,
		resolver: orientation.Resolver{Tolerance: cfg.FlipTolerance},
		p:        mat.NewSymDense(StateSize, nil),
		rAccel:   mat.NewSymDense(3, []float64{cfg.AccelNoise, 0, 0, 0, cfg.AccelNoise, 0, 0, 0, cfg.AccelNoise}),
		rMag:     mat.NewSymDense(1, []float64{cfg.MagNoise}),
	}
	return f, nil
}

// Config returns the tuning the filter was built with.
func (f *Filter) Config() Config {
	return f.cfg
}

// InitialCovariance is the diagonal P0 from the configured variances.
func (f *Filter) InitialCovariance() *mat.SymDense {
	p := mat.NewSymDense(StateSize, nil)
	for i := Roll; i <= Yaw; i++ {
		p.SetSym(i, i, f.cfg.InitialAttitudeVar)
	}
	for i := BiasX; i <= BiasZ; i++ {
		p.SetSym(i, i, f.cfg.InitialBiasVar)
	}
	return p
}

// Initialize sets the state and covariance and clears any divergence. A nil
// seedCov uses InitialCovariance.
func (f *Filter) Initialize(seed State, seedCov *mat.SymDense) error {
	if !seed.isFinite() {
		return fmt.Errorf("%w: seed state %+v", ErrInvalidInput, seed)
	}
	if seedCov == nil {
		seedCov = f.InitialCovariance()
	}
	if n, _ := seedCov.Dims(); n != StateSize {
		return fmt.Errorf("%w: seed covariance is %dx%d, want %dx%d", ErrInvalidInput, n, n, StateSize, StateSize)
	}
	for i := 0; i < StateSize; i++ {
		for j := i; j < StateSize; j++ {
			v := seedCov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: seed covariance is not finite", ErrInvalidInput)
			}
		}
		if seedCov.At(i, i) < 0 {
			return fmt.Errorf("%w: seed covariance has negative variance at %d", ErrInvalidInput, i)
		}
	}

	seed.Roll = geom.Wrap(seed.Roll)
	seed.Pitch = geom.Wrap(seed.Pitch)
	seed.Yaw = geom.Wrap(seed.Yaw)
	f.x = seed
	f.p.CopySym(seedCov)
	f.initialized = true
	f.diverged = false
	f.resolve()
	return nil
}

// SeedFromSensors initializes from the absolute references instead of zero:
// roll/pitch from the accelerometer, yaw from the tilt-compensated heading
// plus declination (radians), bias zero. An unusable mag leaves yaw at 0.
func (f *Filter) SeedFromSensors(accel, mag geom.Vec3, magValid bool, declination float64) error {
	if !accel.IsFinite() || accel.Norm() == 0 {
		return fmt.Errorf("%w: seed accel %v", ErrInvalidInput, accel)
	}
	roll, pitch := orientation.TiltFromAccel(accel)

	var yaw float64
	if magValid && mag.IsFinite() && f.magInBand(mag) {
		if h, err := orientation.Heading(mag, roll, pitch); err == nil {
			yaw = geom.Wrap(h + declination)
		}
	}
	return f.Initialize(State{Roll: roll, Pitch: pitch, Yaw: yaw}, nil)
}

// Initialized reports whether Initialize has been called.
func (f *Filter) Initialized() bool {
	return f.initialized
}

// Diverged reports whether the last step hit the covariance ceiling.
func (f *Filter) Diverged() bool {
	return f.diverged
}

// Flips counts double-flip corrections since the filter was created.
func (f *Filter) Flips() uint64 {
	return f.flips
}

// State returns the current estimate.
func (f *Filter) State() State {
	return f.x
}

// Covariance returns a copy of P.
func (f *Filter) Covariance() *mat.SymDense {
	p := mat.NewSymDense(StateSize, nil)
	p.CopySym(f.p)
	return p
}

// StdDev returns sqrt of the diagonal of P in state order.
func (f *Filter) StdDev() [StateSize]float64 {
	var out [StateSize]float64
	for i := range out {
		out[i] = math.Sqrt(math.Max(f.p.At(i, i), 0))
	}
	return out
}

func (f *Filter) ready() error {
	if !f.initialized {
		return ErrNotInitialized
	}
	if f.diverged {
		return ErrDiverged
	}
	return nil
}

// Predict integrates the bias-corrected body rates (rad/s, NED) over dt
// seconds and propagates P = F·P·Fᵀ + Q·dt.
func (f *Filter) Predict(gyro geom.Vec3, dt float64) error {
	if err := f.ready(); err != nil {
		return err
	}
	if !gyro.IsFinite() || math.IsNaN(dt) {
		return fmt.Errorf("%w: gyro %v dt %v", ErrInvalidInput, gyro, dt)
	}
	if dt <= 0 || dt > f.cfg.MaxDt {
		return fmt.Errorf("%w: dt=%v (max %v)", ErrBadInterval, dt, f.cfg.MaxDt)
	}

	w := gyro.Sub(f.x.Bias)
	sr, cr := math.Sincos(f.x.Roll)
	sp, cp := math.Sincos(f.x.Pitch)
	cp = clampCos(cp, f.cfg.CosPitchEpsilon)
	tp := sp / cp

	// Euler kinematics for Z-Y-X angles.
	rollRate := w[0] + (w[1]*sr+w[2]*cr)*tp
	pitchRate := w[1]*cr - w[2]*sr
	yawRate := (w[1]*sr + w[2]*cr) / cp

	F := eye(StateSize)
	// ∂rate/∂angle
	F.Set(Roll, Roll, 1+dt*(w[1]*cr-w[2]*sr)*tp)
	F.Set(Roll, Pitch, dt*(w[1]*sr+w[2]*cr)/(cp*cp))
	F.Set(Pitch, Roll, dt*(-w[1]*sr-w[2]*cr))
	F.Set(Yaw, Roll, dt*(w[1]*cr-w[2]*sr)/cp)
	F.Set(Yaw, Pitch, dt*(w[1]*sr+w[2]*cr)*sp/(cp*cp))
	// ∂rate/∂bias = −∂rate/∂gyro
	G := [3][3]float64{
		{1, sr * tp, cr * tp},
		{0, cr, -sr},
		{0, sr / cp, cr / cp},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			F.Set(Roll+i, BiasX+j, -dt*G[i][j])
		}
	}

	f.x.Roll = geom.Wrap(f.x.Roll + rollRate*dt)
	f.x.Pitch = geom.Wrap(f.x.Pitch + pitchRate*dt)
	f.x.Yaw = geom.Wrap(f.x.Yaw + yawRate*dt)

	yawVar := f.p.At(Yaw, Yaw)
	var fp, fpf mat.Dense
	fp.Mul(F, f.p)
	fpf.Mul(&fp, F.T())
	for i := 0; i < StateSize; i++ {
		q := f.cfg.AttitudeNoise
		if i >= BiasX {
			q = f.cfg.BiasNoise
		}
		fpf.Set(i, i, fpf.At(i, i)+q*dt)
	}
	symmetrize(f.p, &fpf)
	f.holdYawVariance(yawVar + f.cfg.AttitudeNoise*dt)

	f.resolve()
	return f.checkDivergence()
}

// UpdateAccel corrects roll/pitch with the gravity direction measured in
// the body frame (any unit; it is normalized). h(x) = Rᵀ·[0,0,1].
func (f *Filter) UpdateAccel(accel geom.Vec3) error {
	if err := f.ready(); err != nil {
		return err
	}
	if !accel.IsFinite() {
		return fmt.Errorf("%w: accel %v", ErrInvalidInput, accel)
	}
	n := accel.Norm()
	if n < f.cfg.AccelMinG || n > f.cfg.AccelMaxG {
		return fmt.Errorf("%w: |a|=%.3f g outside [%.2f, %.2f]", ErrAccelRejected, n, f.cfg.AccelMinG, f.cfg.AccelMaxG)
	}
	z, err := accel.Unit()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAccelRejected, err)
	}

	sr, cr := math.Sincos(f.x.Roll)
	sp, cp := math.Sincos(f.x.Pitch)
	h := geom.Vec3{-sp, sr * cp, cr * cp}

	H := mat.NewDense(3, StateSize, nil)
	H.Set(0, Pitch, -cp)
	H.Set(1, Roll, cr*cp)
	H.Set(1, Pitch, -sr*sp)
	H.Set(2, Roll, -sr*cp)
	H.Set(2, Pitch, -cr*sp)

	yawVar := f.p.At(Yaw, Yaw)
	innov := z.Sub(h)
	if err := f.correct(mat.NewVecDense(3, innov[:]), H, f.rAccel); err != nil {
		return err
	}
	f.holdYawVariance(yawVar)
	return f.checkDivergence()
}

// UpdateMag corrects yaw with the tilt-compensated heading of a body-frame
// field (µT) plus declination (radians, east positive).
func (f *Filter) UpdateMag(mag geom.Vec3, declination float64) error {
	if err := f.ready(); err != nil {
		return err
	}
	if !mag.IsFinite() || math.IsNaN(declination) || math.IsInf(declination, 0) {
		return fmt.Errorf("%w: mag %v declination %v", ErrInvalidInput, mag, declination)
	}
	if !f.magInBand(mag) {
		return fmt.Errorf("%w: |m|=%.1f uT outside [%.0f, %.0f]", ErrMagRejected, mag.Norm(), f.cfg.MagMinMicroTesla, f.cfg.MagMaxMicroTesla)
	}
	heading, err := orientation.Heading(mag, f.x.Roll, f.x.Pitch)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMagRejected, err)
	}

	H := mat.NewDense(1, StateSize, nil)
	H.Set(0, Yaw, 1)
	innov := geom.Wrap(heading + declination - f.x.Yaw)
	if err := f.correct(mat.NewVecDense(1, []float64{innov}), H, f.rMag); err != nil {
		return err
	}
	return f.checkDivergence()
}

func (f *Filter) magInBand(m geom.Vec3) bool {
	n := m.Norm()
	return n >= f.cfg.MagMinMicroTesla && n <= f.cfg.MagMaxMicroTesla
}

// correct applies x += K·innov with K = P·Hᵀ·(H·P·Hᵀ + R)⁻¹ and the Joseph
// form P = (I−KH)·P·(I−KH)ᵀ + K·R·Kᵀ.
func (f *Filter) correct(innov *mat.VecDense, H *mat.Dense, R *mat.SymDense) error {
	var pht, s, sInv, k mat.Dense
	pht.Mul(f.p, H.T())
	s.Mul(H, &pht)
	s.Add(&s, R)
	if err := sInv.Inverse(&s); err != nil {
		return fmt.Errorf("ekf: innovation covariance not invertible: %w", err)
	}
	k.Mul(&pht, &sInv)

	var dx mat.VecDense
	dx.MulVec(&k, innov)
	x := f.x.vector()
	for i := range x {
		x[i] += dx.AtVec(i)
	}
	x[Roll] = geom.Wrap(x[Roll])
	x[Pitch] = geom.Wrap(x[Pitch])
	x[Yaw] = geom.Wrap(x[Yaw])
	f.x = stateFromVector(x)

	ikh := eye(StateSize)
	var kh mat.Dense
	kh.Mul(&k, H)
	ikh.Sub(ikh, &kh)

	var a, joseph, kr, krk mat.Dense
	a.Mul(ikh, f.p)
	joseph.Mul(&a, ikh.T())
	kr.Mul(&k, R)
	krk.Mul(&kr, k.T())
	joseph.Add(&joseph, &krk)
	symmetrize(f.p, &joseph)

	f.resolve()
	return nil
}

// holdYawVariance raises P[yaw][yaw] back to floor when a step lowered it.
// Only UpdateMag observes yaw, so nothing else may shrink its variance.
// Adding to a diagonal entry keeps P positive semi-definite.
func (f *Filter) holdYawVariance(floor float64) {
	if v := f.p.At(Yaw, Yaw); v < floor {
		f.p.SetSym(Yaw, Yaw, floor)
	}
}

// resolve applies the double-flip correction to the owned state in place.
func (f *Filter) resolve() {
	r, p, y, flipped := f.resolver.Resolve(f.x.Roll, f.x.Pitch, f.x.Yaw)
	if flipped {
		f.x.Roll, f.x.Pitch, f.x.Yaw = r, p, y
		f.flips++
	}
}

func (f *Filter) checkDivergence() error {
	tr := mat.Trace(f.p)
	if tr > f.cfg.CovarianceCeiling || math.IsNaN(tr) || !f.x.isFinite() {
		f.diverged = true
		return fmt.Errorf("%w: trace(P)=%g ceiling %g", ErrDiverged, tr, f.cfg.CovarianceCeiling)
	}
	return nil
}

// clampCos keeps |c| >= eps with the sign of c.
func clampCos(c, eps float64) float64 {
	if math.Abs(c) >= eps {
		return c
	}
	if c < 0 {
		return -eps
	}
	return eps
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// symmetrize writes (a + aᵀ)/2 into dst.
func symmetrize(dst *mat.SymDense, a mat.Matrix) {
	n, _ := a.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
}
