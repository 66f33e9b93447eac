package mapscene

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// --- Keyframe clips ---

// TrackVec is a keyframe track of Vec3 values (translation or scale).
// Times must be ascending; values are linearly interpolated.
type TrackVec struct {
	Times  []float64
	Values []mgl64.Vec3
}

// Sample returns the interpolated value at time t, clamped to the track ends.
func (tr *TrackVec) Sample(t float64) mgl64.Vec3 {
	i, f := trackSegment(tr.Times, t)
	if f == 0 {
		return tr.Values[i]
	}
	a, b := tr.Values[i], tr.Values[i+1]
	return a.Add(b.Sub(a).Mul(f))
}

// TrackQuat is a keyframe track of rotations, spherically interpolated.
type TrackQuat struct {
	Times  []float64
	Values []mgl64.Quat
}

// Sample returns the interpolated rotation at time t.
func (tr *TrackQuat) Sample(t float64) mgl64.Quat {
	i, f := trackSegment(tr.Times, t)
	if f == 0 {
		return tr.Values[i]
	}
	return mgl64.QuatSlerp(tr.Values[i], tr.Values[i+1], f)
}

// trackSegment locates the keyframe segment containing t and the fractional
// position within it. Returns (index, 0) when t is outside the track.
func trackSegment(times []float64, t float64) (int, float64) {
	n := len(times)
	if n == 0 {
		return 0, 0
	}
	if t <= times[0] {
		return 0, 0
	}
	if t >= times[n-1] {
		return n - 1, 0
	}
	for i := 0; i < n-1; i++ {
		if t < times[i+1] {
			span := times[i+1] - times[i]
			if span <= 0 {
				return i, 0
			}
			return i, (t - times[i]) / span
		}
	}
	return n - 1, 0
}

// ClipTarget binds a set of tracks to one scene object. Channels without a
// track hold the target's rest pose.
type ClipTarget struct {
	Object          *Object
	RestTranslation mgl64.Vec3
	RestRotation    mgl64.Quat
	RestScale       mgl64.Vec3
	Translation     *TrackVec
	Rotation        *TrackQuat
	Scale           *TrackVec
}

// AnimationClip is a named set of keyframe tracks over an item's subtree.
type AnimationClip struct {
	Name     string
	Duration float64
	Targets  []ClipTarget
}

// Sample writes the pose at time t into every target's local matrix.
func (c *AnimationClip) Sample(t float64) {
	for i := range c.Targets {
		tg := &c.Targets[i]
		if tg.Object == nil {
			continue
		}
		tr := tg.RestTranslation
		if tg.Translation != nil {
			tr = tg.Translation.Sample(t)
		}
		rot := tg.RestRotation
		if tg.Rotation != nil {
			rot = tg.Rotation.Sample(t)
		}
		sc := tg.RestScale
		if tg.Scale != nil {
			sc = tg.Scale.Sample(t)
		}
		m := mgl64.Translate3D(tr.X(), tr.Y(), tr.Z()).
			Mul4(rot.Normalize().Mat4()).
			Mul4(mgl64.Scale3D(sc.X(), sc.Y(), sc.Z()))
		tg.Object.SetLocal(m)
	}
}

// rebind retargets the clip onto a cloned subtree using an old-to-new
// object mapping, leaving the original clip untouched.
func (c *AnimationClip) rebind(mapping map[*Object]*Object) *AnimationClip {
	nc := &AnimationClip{Name: c.Name, Duration: c.Duration, Targets: make([]ClipTarget, len(c.Targets))}
	copy(nc.Targets, c.Targets)
	for i := range nc.Targets {
		if repl, ok := mapping[nc.Targets[i].Object]; ok {
			nc.Targets[i].Object = repl
		} else {
			nc.Targets[i].Object = nil
		}
	}
	return nc
}

// --- Per-item playback ---

type playback struct {
	mode    LoopMode
	time    float64
	forward bool // ping-pong direction
	playing bool
}

// itemAnimation is the item's shared animation clock: one time driver for
// all of its playing clips.
type itemAnimation struct {
	mode       AnimationMode
	clips      map[string]*AnimationClip
	playing    map[string]*playback
	loopID     string
	registered bool
}

// setClips installs the clip set on the item. Called when a loaded mesh is
// registered and when a clone rebinds.
func (it *Item) setClips(clips []*AnimationClip, mode AnimationMode) {
	if len(clips) == 0 {
		it.anim = nil
		return
	}
	a := &itemAnimation{
		mode:    mode,
		clips:   map[string]*AnimationClip{},
		playing: map[string]*playback{},
		loopID:  "anim/" + it.id,
	}
	for _, c := range clips {
		a.clips[c.Name] = c
	}
	it.anim = a
}

// Animations returns the names of the item's animation clips.
func (it *Item) Animations() []string {
	if it.anim == nil {
		return nil
	}
	names := make([]string, 0, len(it.anim.clips))
	for name := range it.anim.clips {
		names = append(names, name)
	}
	return names
}

// PlayAnimation starts (or changes the loop mode of) a named clip. In
// continuous mode the item registers itself on the shared animation loop,
// which advances the clock and forces a repaint every frame.
func (it *Item) PlayAnimation(name string, mode LoopMode) error {
	a := it.anim
	if a == nil {
		return fmt.Errorf("mapscene: item %q has no animations", it.id)
	}
	if _, ok := a.clips[name]; !ok {
		return fmt.Errorf("mapscene: item %q has no animation %q", it.id, name)
	}
	pb, ok := a.playing[name]
	if !ok {
		pb = &playback{forward: true}
		a.playing[name] = pb
	}
	pb.mode = mode
	pb.playing = true
	it.syncAnimationLoop()
	return nil
}

// PauseAnimation stops advancing a named clip, holding its current time.
func (it *Item) PauseAnimation(name string) {
	a := it.anim
	if a == nil {
		return
	}
	if pb, ok := a.playing[name]; ok {
		pb.playing = false
	}
	it.syncAnimationLoop()
}

// SetAnimationTime seeks every playing clip's clock to t and samples it.
func (it *Item) SetAnimationTime(t float64) {
	a := it.anim
	if a == nil {
		return
	}
	for name, pb := range a.playing {
		pb.time = t
		a.clips[name].Sample(pb.time)
	}
	it.requestRepaint()
}

// UpdateAnimation advances every playing clip by dt seconds and samples the
// resulting poses. In manual mode this is the caller's only way to step the
// clock; in continuous mode the shared loop calls it.
func (it *Item) UpdateAnimation(dt float64) {
	a := it.anim
	if a == nil || dt == 0 {
		return
	}
	advanced := false
	for name, pb := range a.playing {
		if !pb.playing {
			continue
		}
		clip := a.clips[name]
		advancePlayback(pb, clip.Duration, dt)
		clip.Sample(pb.time)
		advanced = true
	}
	if advanced {
		it.requestRepaint()
	}
	it.syncAnimationLoop()
}

// advancePlayback steps one clip clock, applying its loop mode at the ends.
func advancePlayback(pb *playback, duration, dt float64) {
	if duration <= 0 {
		pb.playing = false
		return
	}
	switch pb.mode {
	case LoopOnce:
		pb.time += dt
		if pb.time >= duration {
			pb.time = duration
			pb.playing = false
		}
	case LoopRepeat:
		pb.time = math.Mod(pb.time+dt, duration)
	case LoopPingPong:
		if pb.forward {
			pb.time += dt
			for pb.time > duration {
				pb.time = 2*duration - pb.time
				pb.forward = false
			}
		} else {
			pb.time -= dt
			for pb.time < 0 {
				pb.time = -pb.time
				pb.forward = true
			}
		}
	}
}

// syncAnimationLoop registers or unregisters the item on the manager's
// animation loop so that continuous items tick exactly while something is
// playing. Manual items never register.
func (it *Item) syncAnimationLoop() {
	a := it.anim
	if a == nil || a.mode == AnimationManual {
		return
	}
	if it.layer == nil || it.layer.manager == nil {
		return
	}
	any := false
	for _, pb := range a.playing {
		if pb.playing {
			any = true
			break
		}
	}
	switch {
	case any && !a.registered:
		it.layer.manager.RegisterAnimationLoop(a.loopID, func(dt float64) {
			it.UpdateAnimation(dt)
		})
		a.registered = true
	case !any && a.registered:
		it.layer.manager.UnregisterAnimationLoop(a.loopID)
		a.registered = false
	}
}

// stopAnimationLoop unconditionally detaches the item from the shared loop.
// Called on item removal.
func (it *Item) stopAnimationLoop() {
	a := it.anim
	if a == nil || !a.registered {
		return
	}
	if it.layer != nil && it.layer.manager != nil {
		it.layer.manager.UnregisterAnimationLoop(a.loopID)
	}
	a.registered = false
}

// --- Property tweens ---

// tweenIDCounter disambiguates concurrent tweens on the shared loop.
var tweenIDCounter uint32

// Tween eases one or more item properties toward target values. Created via
// the Tween* constructors; when the owning layer is attached, the tween
// drives itself from the shared animation loop and detaches when finished.
// On a detached layer, step it manually with Update.
type Tween struct {
	item   *Item
	tweens [3]*gween.Tween
	count  int
	apply  func(vals [3]float64)
	loopID string
	Done   bool
}

func newItemTween(it *Item, count int, apply func([3]float64)) *Tween {
	tweenIDCounter++
	t := &Tween{
		item:   it,
		count:  count,
		apply:  apply,
		loopID: fmt.Sprintf("tween/%s/%d", it.id, tweenIDCounter),
	}
	if it.layer != nil && it.layer.manager != nil {
		m := it.layer.manager
		m.RegisterAnimationLoop(t.loopID, func(dt float64) {
			t.Update(dt)
			if t.Done {
				m.UnregisterAnimationLoop(t.loopID)
			}
		})
	}
	return t
}

// Update advances the tween by dt seconds and applies the eased values.
func (t *Tween) Update(dt float64) {
	if t.Done {
		return
	}
	var vals [3]float64
	allDone := true
	for i := 0; i < t.count; i++ {
		v, finished := t.tweens[i].Update(float32(dt))
		vals[i] = float64(v)
		if !finished {
			allDone = false
		}
	}
	t.apply(vals)
	t.Done = allDone
}

// TweenOpacity eases the item's opacity to the target value.
func (it *Item) TweenOpacity(to float64, duration float32, fn ease.TweenFunc) *Tween {
	t := newItemTween(it, 1, func(vals [3]float64) {
		it.SetOpacity(vals[0], true)
	})
	t.tweens[0] = gween.New(float32(it.opacity), float32(to), duration, fn)
	return t
}

// TweenScale eases the item's scale to the target factors.
func (it *Item) TweenScale(to mgl64.Vec3, duration float32, fn ease.TweenFunc) *Tween {
	t := newItemTween(it, 3, func(vals [3]float64) {
		it.SetScale(mgl64.Vec3{vals[0], vals[1], vals[2]}, true)
	})
	s := it.scale
	t.tweens[0] = gween.New(float32(s.X()), float32(to.X()), duration, fn)
	t.tweens[1] = gween.New(float32(s.Y()), float32(to.Y()), duration, fn)
	t.tweens[2] = gween.New(float32(s.Z()), float32(to.Z()), duration, fn)
	return t
}

// TweenAltitude eases the item's raw altitude to the target value.
func (it *Item) TweenAltitude(to float64, duration float32, fn ease.TweenFunc) *Tween {
	t := newItemTween(it, 1, func(vals [3]float64) {
		it.SetAltitude(vals[0], true)
	})
	t.tweens[0] = gween.New(float32(it.alt), float32(to), duration, fn)
	return t
}
