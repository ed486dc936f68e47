package instrument

import (
	"context"
	"math"
	"testing"

	"seebeck/internal/testsupport"
)

func simForTest(t *testing.T) *SimRig {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Instrument.Sim.NoiseStddevC = 0
	return NewSimRig(cfg)
}

func advance(t *testing.T, rig *SimRig, seconds float64) Reading {
	t.Helper()
	ctx := context.Background()
	var last Reading
	for {
		reading, err := rig.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		last = reading
		if reading.ElapsedSeconds >= seconds {
			return last
		}
	}
}

func TestSimRigStartsAtAmbient(t *testing.T) {
	rig := simForTest(t)
	reading, err := rig.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	ambient := reading.TAmbientC
	if math.Abs(reading.THotC-ambient) > 0.01 || math.Abs(reading.TColdC-ambient) > 0.01 {
		t.Fatalf("expected plates at ambient %.1f, got hot=%.2f cold=%.2f", ambient, reading.THotC, reading.TColdC)
	}
	if reading.CurrentAmps != 0 {
		t.Fatalf("open circuit should carry no current, got %v A", reading.CurrentAmps)
	}
}

func TestSimRigHeatingRaisesHotPlate(t *testing.T) {
	rig := simForTest(t)
	ctx := context.Background()
	if err := rig.SetHeaterPower(ctx, 40); err != nil {
		t.Fatalf("SetHeaterPower: %v", err)
	}
	reading := advance(t, rig, 300)
	if reading.THotC <= reading.TAmbientC+5 {
		t.Fatalf("hot plate should warm well above ambient, got %.2f", reading.THotC)
	}
	if reading.THotC <= reading.TColdC {
		t.Fatalf("hot plate should lead cold plate, got hot=%.2f cold=%.2f", reading.THotC, reading.TColdC)
	}
}

func TestSimRigOpenCircuitEMFTracksSeebeck(t *testing.T) {
	rig := simForTest(t)
	ctx := context.Background()
	if err := rig.SetHeaterPower(ctx, 40); err != nil {
		t.Fatalf("SetHeaterPower: %v", err)
	}
	if err := rig.SetCoolerPower(ctx, 10); err != nil {
		t.Fatalf("SetCoolerPower: %v", err)
	}
	reading := advance(t, rig, 600)
	alpha := rig.params.SeebeckVPerK
	want := alpha * reading.DeltaT()
	if math.Abs(reading.EMFVolts-want) > 1e-9 {
		t.Fatalf("open-circuit EMF = %.6f V, want alpha*deltaT = %.6f V", reading.EMFVolts, want)
	}
}

func TestSimRigLoadedCircuitDeliversPower(t *testing.T) {
	rig := simForTest(t)
	ctx := context.Background()
	if err := rig.SetHeaterPower(ctx, 40); err != nil {
		t.Fatalf("SetHeaterPower: %v", err)
	}
	advance(t, rig, 300)
	if err := rig.SelectLoad(ctx, rig.params.InternalOhms); err != nil {
		t.Fatalf("SelectLoad: %v", err)
	}
	reading := advance(t, rig, 310)
	if reading.CurrentAmps <= 0 {
		t.Fatalf("loaded circuit should carry current, got %v A", reading.CurrentAmps)
	}
	if reading.PowerWatts() <= 0 {
		t.Fatalf("loaded circuit should deliver power, got %v W", reading.PowerWatts())
	}
	// Terminal voltage sags under load.
	openEMF := rig.params.SeebeckVPerK * reading.DeltaT()
	if reading.EMFVolts >= openEMF {
		t.Fatalf("terminal voltage %.4f should sag below open-circuit EMF %.4f", reading.EMFVolts, openEMF)
	}
}

func TestSimRigMatchedLoadMaximizesPower(t *testing.T) {
	// At a fixed temperature difference the load power V^2*R/(R_int+R)^2
	// peaks where R equals the internal resistance. Compare three loads
	// under identical conditions by running three fresh rigs.
	powerAt := func(load float64) float64 {
		rig := simForTest(t)
		ctx := context.Background()
		if err := rig.SetHeaterPower(ctx, 40); err != nil {
			t.Fatalf("SetHeaterPower: %v", err)
		}
		advance(t, rig, 300)
		if err := rig.SelectLoad(ctx, load); err != nil {
			t.Fatalf("SelectLoad: %v", err)
		}
		reading, err := rig.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		return reading.PowerWatts()
	}

	internal := testsupport.NewConfig(t).Instrument.Sim.InternalOhms
	matched := powerAt(internal)
	low := powerAt(internal / 4)
	high := powerAt(internal * 4)
	if matched <= low || matched <= high {
		t.Fatalf("matched load power %.5f should beat %.5f (low) and %.5f (high)", matched, low, high)
	}
}

func TestSimRigSteadyStateBounded(t *testing.T) {
	rig := simForTest(t)
	ctx := context.Background()
	if err := rig.SetHeaterPower(ctx, 40); err != nil {
		t.Fatalf("SetHeaterPower: %v", err)
	}
	earlier := advance(t, rig, 7200)
	later := advance(t, rig, 7800)
	if later.THotC > 500 {
		t.Fatalf("hot plate ran away to %.1f C", later.THotC)
	}
	if math.Abs(later.THotC-earlier.THotC) > 1.0 {
		t.Fatalf("hot plate should be near steady state after an hour, drifted %.2f C in ten minutes", later.THotC-earlier.THotC)
	}
}

func TestSimRigPowerClamping(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Instrument.Sim.NoiseStddevC = 0
	rig := NewSimRig(cfg)
	ctx := context.Background()

	if err := rig.SetHeaterPower(ctx, cfg.Instrument.HeaterMaxWatts*10); err != nil {
		t.Fatalf("SetHeaterPower: %v", err)
	}
	if err := rig.SetCoolerPower(ctx, -5); err != nil {
		t.Fatalf("SetCoolerPower: %v", err)
	}
	reading, err := rig.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if reading.HeaterWatts != cfg.Instrument.HeaterMaxWatts {
		t.Fatalf("heater should clamp to %.1f W, got %.1f", cfg.Instrument.HeaterMaxWatts, reading.HeaterWatts)
	}
	if reading.CoolerWatts != 0 {
		t.Fatalf("cooler should clamp to 0 W, got %.1f", reading.CoolerWatts)
	}
}

func TestSimRigNoiseIsDeterministic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Instrument.Sim.NoiseStddevC = 0.05
	cfg.Instrument.Sim.NoiseSeed = 42

	readSeries := func() []float64 {
		rig := NewSimRig(cfg)
		ctx := context.Background()
		var out []float64
		for i := 0; i < 20; i++ {
			reading, err := rig.Read(ctx)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			out = append(out, reading.THotC)
		}
		return out
	}

	first := readSeries()
	second := readSeries()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("seeded noise should repeat exactly, sample %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestSimRigClosed(t *testing.T) {
	rig := simForTest(t)
	if err := rig.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := rig.Read(context.Background()); !IsClosed(err) {
		t.Fatalf("expected closed-rig error, got %v", err)
	}
	if err := rig.SetHeaterPower(context.Background(), 1); !IsClosed(err) {
		t.Fatalf("expected closed-rig error, got %v", err)
	}
}
