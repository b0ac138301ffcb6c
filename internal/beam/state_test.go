package beam

import (
	"math"
	"testing"

	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/phys"
)

func twoStateBeam() *State {
	s := &State{
		Pos:          1.5,
		SampleLambda: phys.SampleLambda(phys.SampleFreqDefault),
		Ref: Particle{
			IonZ:  33.0 / 238.0,
			IonEk: 500e3,
			IonEs: phys.AMU,
		},
	}
	a := ChargeState{
		Particle: Particle{IonZ: 33.0 / 238.0, IonQ: 10111, IonEk: 500e3, IonEs: phys.AMU},
	}
	a.Moment0 = linalg.Vec{1, 0, -1, 0, 0, 0, 1}
	a.Moment1 = linalg.Identity()

	b := ChargeState{
		Particle: Particle{IonZ: 34.0 / 238.0, IonQ: 10531, IonEk: 500e3, IonEs: phys.AMU},
	}
	b.Moment0 = linalg.Vec{-1, 0, 1, 0, 0, 0, 1}
	b.Moment1 = linalg.Identity().Scale(2)

	s.States = []ChargeState{a, b}
	return s
}

func TestCloneIsDeep(t *testing.T) {
	s := twoStateBeam()
	c := s.Clone()

	c.States[0].Moment0[IndexX] = 42
	c.States[1].Moment1[0][0] = 99
	c.Ref.IonEk = 1

	if s.States[0].Moment0[IndexX] == 42 {
		t.Errorf("Clone shares centroid storage")
	}
	if s.States[1].Moment1[0][0] == 99 {
		t.Errorf("Clone shares envelope storage")
	}
	if s.Ref.IonEk == 1 {
		t.Errorf("Clone shares reference particle")
	}
}

func TestFindByIonZ(t *testing.T) {
	s := twoStateBeam()

	if cs := s.Find(34.0 / 238.0); cs == nil || cs.IonQ != 10531 {
		t.Errorf("Find(34/238) = %v, want second state", cs)
	}
	if cs := s.Find(35.0 / 238.0); cs != nil {
		t.Errorf("Find(35/238) = %v, want nil", cs)
	}
	// Key that went through a decimal round-trip.
	if cs := s.Find(0.13865546218487396); cs == nil {
		t.Errorf("Find should tolerate decimal round-trip of 33/238")
	}
}

func TestMoment0Env(t *testing.T) {
	s := twoStateBeam()
	env := s.Moment0Env()

	wa, wb := 10111.0, 10531.0
	wantX := (wa*1 + wb*(-1)) / (wa + wb)
	if math.Abs(env[IndexX]-wantX) > 1e-12 {
		t.Errorf("env x = %v, want %v", env[IndexX], wantX)
	}
	if math.Abs(env[IndexOne]-1) > 1e-12 {
		t.Errorf("homogeneous component of envelope centroid = %v, want 1", env[IndexOne])
	}
}

func TestMoment1EnvIncludesCentroidSpread(t *testing.T) {
	s := twoStateBeam()
	env := s.Moment1Env()

	// Weighted mean of unit and 2x envelopes plus the spread of the two
	// centroids about the combined one.
	wa, wb := 10111.0, 10531.0
	w := wa + wb
	m0 := s.Moment0Env()
	da := 1 - m0[IndexX]
	db := -1 - m0[IndexX]
	want := (wa*(1+da*da) + wb*(2+db*db)) / w
	if math.Abs(env[0][0]-want) > 1e-12 {
		t.Errorf("env[0][0] = %v, want %v", env[0][0], want)
	}

	// Spread term must make the combined envelope strictly larger than the
	// weighted mean of the per-state envelopes alone.
	meanOnly := (wa*1 + wb*2) / w
	if env[0][0] <= meanOnly {
		t.Errorf("combined envelope %v should exceed mean-only %v", env[0][0], meanOnly)
	}

	for i := 0; i < linalg.Dim; i++ {
		for j := 0; j < linalg.Dim; j++ {
			if math.Abs(env[i][j]-env[j][i]) > 1e-12 {
				t.Fatalf("combined envelope not symmetric at (%d,%d)", i, j)
			}
		}
	}
}

func TestMoment0RMS(t *testing.T) {
	s := twoStateBeam()
	rms := s.Moment0RMS()
	env := s.Moment1Env()
	for i := 0; i < linalg.Dim; i++ {
		if math.Abs(rms[i]*rms[i]-env[i][i]) > 1e-9 {
			t.Errorf("rms[%d]^2 = %v, want %v", i, rms[i]*rms[i], env[i][i])
		}
	}
}

func TestSingleStateEnvelopeIsOwnMoments(t *testing.T) {
	s := twoStateBeam()
	s.States = s.States[:1]

	if !linalg.VecApproxEqual(s.Moment0Env(), s.States[0].Moment0, 1e-12) {
		t.Errorf("single-state combined centroid differs from its own")
	}
	if !linalg.MatApproxEqual(s.Moment1Env(), s.States[0].Moment1, 1e-12) {
		t.Errorf("single-state combined envelope differs from its own")
	}
}

func TestIsValid(t *testing.T) {
	s := twoStateBeam()
	if !s.IsValid() {
		t.Fatalf("healthy beam reported invalid")
	}
	s.States[1].Moment1[3][3] = math.NaN()
	if s.IsValid() {
		t.Errorf("NaN envelope reported valid")
	}
}

func TestParticleKinematics(t *testing.T) {
	p := Particle{IonZ: 33.0 / 238.0, IonEk: 500e3, IonEs: phys.AMU}

	if got, want := p.IonW(), phys.AMU+500e3; got != want {
		t.Errorf("IonW = %v, want %v", got, want)
	}
	g := p.Gamma()
	if math.Abs(p.BG()-p.Beta()*g) > 1e-12 {
		t.Errorf("BG != Beta*Gamma")
	}
	if p.Brho() <= 0 {
		t.Errorf("Brho should be positive")
	}
	lambda := phys.SampleLambda(phys.SampleFreqDefault)
	if k := p.SampleIonK(lambda); math.Abs(k-2*math.Pi/(lambda*p.Beta())) > 1e-15 {
		t.Errorf("SampleIonK = %v", k)
	}
}
