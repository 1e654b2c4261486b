package simhost

import (
	"github.com/EngineStateManager/extension/pkg/hostapi"
)

var _ hostapi.Natives = (*World)(nil)

// call counts op and reports an injected failure, if any.
func (w *World) call(op string) error {
	w.calls[op]++
	return w.failing[op]
}

func (w *World) GameTime() (int64, error) {
	if err := w.call("GameTime"); err != nil {
		return 0, err
	}
	return w.now, nil
}

func (w *World) Exists(h hostapi.Handle) (bool, error) {
	if err := w.call("Exists"); err != nil {
		return false, err
	}
	if _, ok := w.vehicles[h]; ok {
		return true, nil
	}
	_, ok := w.peds[h]
	return ok, nil
}

func (w *World) Position(h hostapi.Handle) (hostapi.Vec3, error) {
	if err := w.call("Position"); err != nil {
		return hostapi.Vec3{}, err
	}
	if v, ok := w.vehicles[h]; ok {
		return v.Position, nil
	}
	if p, ok := w.peds[h]; ok {
		if v, ok := w.vehicles[p.Vehicle]; ok {
			return v.Position, nil
		}
		if h == w.agent {
			return w.agentPos, nil
		}
	}
	return hostapi.Vec3{}, nil
}

func (w *World) Class(h hostapi.Handle) (hostapi.VehicleClass, error) {
	if err := w.call("Class"); err != nil {
		return hostapi.ClassOther, err
	}
	if v, ok := w.vehicles[h]; ok {
		return v.Class, nil
	}
	return hostapi.ClassOther, nil
}

func (w *World) BoneIndex(h hostapi.Handle, bone string) (int, error) {
	if err := w.call("BoneIndex"); err != nil {
		return -1, err
	}
	if v, ok := w.vehicles[h]; ok {
		for i, b := range v.Bones {
			if b == bone {
				return i, nil
			}
		}
	}
	return -1, nil
}

func (w *World) EngineOn(h hostapi.Handle) (bool, error) {
	if err := w.call("EngineOn"); err != nil {
		return false, err
	}
	if v, ok := w.vehicles[h]; ok {
		return v.EngineOn, nil
	}
	return false, nil
}

func (w *World) SetEngineOn(h hostapi.Handle, on, instantly, disableAutoStart bool) error {
	if err := w.call("SetEngineOn"); err != nil {
		return err
	}
	if v, ok := w.vehicles[h]; ok {
		v.EngineOn = on
		if !on {
			v.RPM = 0
		}
	}
	return nil
}

func (w *World) SetKeepEngineOn(h hostapi.Handle, keep bool) error {
	if err := w.call("SetKeepEngineOn"); err != nil {
		return err
	}
	if v, ok := w.vehicles[h]; ok {
		v.KeepEngineOn = keep
	}
	return nil
}

func (w *World) SetJetEngineOn(h hostapi.Handle, on bool) error {
	if err := w.call("SetJetEngineOn"); err != nil {
		return err
	}
	if v, ok := w.vehicles[h]; ok {
		v.JetEngineOn = on
	}
	return nil
}

func (w *World) SetEnginePowerMultiplier(h hostapi.Handle, m float64) error {
	if err := w.call("SetEnginePowerMultiplier"); err != nil {
		return err
	}
	if v, ok := w.vehicles[h]; ok {
		v.PowerMultiplier = m
	}
	return nil
}

func (w *World) SetUndriveable(h hostapi.Handle, undriveable bool) error {
	if err := w.call("SetUndriveable"); err != nil {
		return err
	}
	if v, ok := w.vehicles[h]; ok {
		v.Undriveable = undriveable
	}
	return nil
}

func (w *World) RPM(h hostapi.Handle) (float64, error) {
	if err := w.call("RPM"); err != nil {
		return 0, err
	}
	if v, ok := w.vehicles[h]; ok {
		return v.RPM, nil
	}
	return 0, nil
}

func (w *World) SetRPM(h hostapi.Handle, rpm float64) error {
	if err := w.call("SetRPM"); err != nil {
		return err
	}
	if v, ok := w.vehicles[h]; ok {
		v.RPM = rpm
	}
	return nil
}

func (w *World) SetHeliBladesFullSpeed(h hostapi.Handle) error {
	if err := w.call("SetHeliBladesFullSpeed"); err != nil {
		return err
	}
	if v, ok := w.vehicles[h]; ok {
		v.BladesFullSpeed = true
	}
	return nil
}

func (w *World) EngineHealth(h hostapi.Handle) (float64, error) {
	if err := w.call("EngineHealth"); err != nil {
		return 0, err
	}
	if v, ok := w.vehicles[h]; ok {
		return v.EngineHealth, nil
	}
	return 0, nil
}

func (w *World) SetEngineHealth(h hostapi.Handle, hp float64) error {
	if err := w.call("SetEngineHealth"); err != nil {
		return err
	}
	if v, ok := w.vehicles[h]; ok {
		v.EngineHealth = hp
	}
	return nil
}

func (w *World) PetrolTankHealth(h hostapi.Handle) (float64, error) {
	if err := w.call("PetrolTankHealth"); err != nil {
		return 0, err
	}
	if v, ok := w.vehicles[h]; ok {
		return v.TankHealth, nil
	}
	return 0, nil
}

func (w *World) SetPetrolTankHealth(h hostapi.Handle, hp float64) error {
	if err := w.call("SetPetrolTankHealth"); err != nil {
		return err
	}
	if v, ok := w.vehicles[h]; ok {
		v.TankHealth = hp
	}
	return nil
}

func (w *World) SetEngineCanDegrade(h hostapi.Handle, can bool) error {
	if err := w.call("SetEngineCanDegrade"); err != nil {
		return err
	}
	if v, ok := w.vehicles[h]; ok {
		v.CanDegrade = can
	}
	return nil
}

func (w *World) OnAllWheels(h hostapi.Handle) (bool, error) {
	if err := w.call("OnAllWheels"); err != nil {
		return true, err
	}
	if v, ok := w.vehicles[h]; ok {
		return v.OnAllWheels, nil
	}
	return true, nil
}

func (w *World) HeightAboveGround(h hostapi.Handle) (float64, error) {
	if err := w.call("HeightAboveGround"); err != nil {
		return 0, err
	}
	if v, ok := w.vehicles[h]; ok {
		return v.HeightAboveGround, nil
	}
	return 0, nil
}

func (w *World) SeatOccupant(h hostapi.Handle, seat hostapi.Seat) (hostapi.Handle, error) {
	if err := w.call("SeatOccupant"); err != nil {
		return hostapi.NoHandle, err
	}
	if v, ok := w.vehicles[h]; ok {
		return v.Seats[seat], nil
	}
	return hostapi.NoHandle, nil
}

func (w *World) Agent() (hostapi.Handle, error) {
	if err := w.call("Agent"); err != nil {
		return hostapi.NoHandle, err
	}
	return w.agent, nil
}

func (w *World) AgentVehicle() (hostapi.Handle, error) {
	if err := w.call("AgentVehicle"); err != nil {
		return hostapi.NoHandle, err
	}
	return w.agentPed().Vehicle, nil
}

func (w *World) AgentSeat() (hostapi.Seat, error) {
	if err := w.call("AgentSeat"); err != nil {
		return hostapi.SeatNone, err
	}
	return w.agentPed().Seat, nil
}

func (w *World) IsEnteringAnyVehicle() (bool, error) {
	if err := w.call("IsEnteringAnyVehicle"); err != nil {
		return false, err
	}
	return w.entering, nil
}

func (w *World) IsExitingVehicle() (bool, error) {
	if err := w.call("IsExitingVehicle"); err != nil {
		return false, err
	}
	return w.exiting, nil
}

func (w *World) EntryTarget() (hostapi.Handle, error) {
	if err := w.call("EntryTarget"); err != nil {
		return hostapi.NoHandle, err
	}
	return w.entryTarget, nil
}

func (w *World) ControlPressed(c hostapi.Control) (bool, error) {
	if err := w.call("ControlPressed"); err != nil {
		return false, err
	}
	return w.controls[c], nil
}

func (w *World) RequestModel(m hostapi.Model) error {
	if err := w.call("RequestModel"); err != nil {
		return err
	}
	st, ok := w.models[m]
	if !ok {
		st = &modelState{}
		w.models[m] = st
	}
	if !st.requested {
		st.requested = true
		st.readyAt = w.now + w.ModelLoadDelayMs
	}
	return nil
}

func (w *World) ModelLoaded(m hostapi.Model) (bool, error) {
	if err := w.call("ModelLoaded"); err != nil {
		return false, err
	}
	st, ok := w.models[m]
	return ok && st.loaded, nil
}

func (w *World) ReleaseModel(m hostapi.Model) error {
	if err := w.call("ReleaseModel"); err != nil {
		return err
	}
	delete(w.models, m)
	return nil
}

func (w *World) SpawnInSeat(h hostapi.Handle, m hostapi.Model, seat hostapi.Seat) (hostapi.Handle, error) {
	if err := w.call("SpawnInSeat"); err != nil {
		return hostapi.NoHandle, err
	}
	v, ok := w.vehicles[h]
	if !ok {
		return hostapi.NoHandle, nil
	}
	if st, ok := w.models[m]; !ok || !st.loaded {
		return hostapi.NoHandle, nil
	}
	if _, taken := v.Seats[seat]; taken {
		return hostapi.NoHandle, nil
	}
	p := w.newPed(m)
	ped := w.peds[p]
	ped.Vehicle = h
	ped.Seat = seat
	v.Seats[seat] = p
	return p, nil
}

func (w *World) ped(op string, h hostapi.Handle) (*Ped, error) {
	if err := w.call(op); err != nil {
		return nil, err
	}
	return w.peds[h], nil
}

func (w *World) SetVisible(h hostapi.Handle, visible bool) error {
	p, err := w.ped("SetVisible", h)
	if p != nil {
		p.Visible = visible
	}
	return err
}

func (w *World) SetAlpha(h hostapi.Handle, alpha int) error {
	p, err := w.ped("SetAlpha", h)
	if p != nil {
		p.Alpha = alpha
	}
	return err
}

func (w *World) SetCollision(h hostapi.Handle, collide bool) error {
	p, err := w.ped("SetCollision", h)
	if p != nil {
		p.Collision = collide
	}
	return err
}

func (w *World) SetTargetable(h hostapi.Handle, targetable bool) error {
	p, err := w.ped("SetTargetable", h)
	if p != nil {
		p.Targetable = targetable
	}
	return err
}

func (w *World) SetBlockEvents(h hostapi.Handle, block bool) error {
	p, err := w.ped("SetBlockEvents", h)
	if p != nil {
		p.BlockEvents = block
	}
	return err
}

func (w *World) SilenceVoice(h hostapi.Handle) error {
	p, err := w.ped("SilenceVoice", h)
	if p != nil {
		p.Silenced = true
	}
	return err
}

func (w *World) Delete(h hostapi.Handle) error {
	if err := w.call("Delete"); err != nil {
		return err
	}
	if h == w.agent {
		return nil
	}
	if p, ok := w.peds[h]; ok {
		w.unseat(p)
		delete(w.peds, h)
		return nil
	}
	w.RemoveVehicle(h)
	return nil
}
