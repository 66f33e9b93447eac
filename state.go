package mapscene

import "github.com/jinzhu/copier"

// Named UI states layer partial property overrides on top of an item, much
// like CSS pseudo-classes: a base "default" state is always active, and any
// number of named states can be activated and deactivated out of push order.
// Two names are special: "hover" and "active" are bound automatically to
// pointer event pairs when registered.

const (
	stateDefault = "default"
	stateHover   = "hover"
	stateActive  = "active"
)

// uiState is one named overlay: its stored property overrides plus the
// cleanup closure that detaches any auto-bound pointer listeners.
type uiState struct {
	props   ItemChanges
	cleanup func()
}

// statePropKind enumerates the closed set of properties a UI state (or a
// Modify call) can carry. Dispatch is an exhaustive switch, so a property
// without a matching setter cannot slip through unnoticed.
type statePropKind uint8

const (
	propVisible statePropKind = iota
	propPosition
	propAltitude
	propAltitudeReference
	propHeading
	propScale
	propOpacity
	propPointSize
	propWireframe

	statePropCount
)

// applyChange dispatches one property kind from ch to its typed setter.
// Absent (nil) properties are skipped. Repaint is always deferred; callers
// issue a single repaint after the batch.
func applyChange(it *Item, ch ItemChanges, kind statePropKind) {
	switch kind {
	case propVisible:
		if ch.Visible != nil {
			it.SetVisible(*ch.Visible, false)
		}
	case propPosition:
		if ch.Position != nil {
			it.SetLngLat(*ch.Position, false)
		}
	case propAltitude:
		if ch.Altitude != nil {
			it.SetAltitude(*ch.Altitude, false)
		}
	case propAltitudeReference:
		if ch.AltitudeReference != nil {
			it.SetAltitudeReference(*ch.AltitudeReference, false)
		}
	case propHeading:
		if ch.Heading != nil {
			it.SetHeading(*ch.Heading, false)
		}
	case propScale:
		if ch.Scale != nil {
			it.SetScale(*ch.Scale, false)
		}
	case propOpacity:
		if ch.Opacity != nil {
			it.SetOpacity(*ch.Opacity, false)
		}
	case propPointSize:
		if ch.PointSize != nil {
			it.SetPointSize(*ch.PointSize, false)
		}
	case propWireframe:
		if ch.Wireframe != nil {
			it.SetWireframe(*ch.Wireframe, false)
		}
	case statePropCount:
		// unreachable; present to keep the switch exhaustive
	}
}

// mergeChanges folds src on top of dst: properties present in src win.
func mergeChanges(dst *ItemChanges, src ItemChanges) {
	if src.Visible != nil {
		dst.Visible = src.Visible
	}
	if src.Position != nil {
		dst.Position = src.Position
	}
	if src.Altitude != nil {
		dst.Altitude = src.Altitude
	}
	if src.AltitudeReference != nil {
		dst.AltitudeReference = src.AltitudeReference
	}
	if src.Heading != nil {
		dst.Heading = src.Heading
	}
	if src.Scale != nil {
		dst.Scale = src.Scale
	}
	if src.Opacity != nil {
		dst.Opacity = src.Opacity
	}
	if src.PointSize != nil {
		dst.PointSize = src.PointSize
	}
	if src.Wireframe != nil {
		dst.Wireframe = src.Wireframe
	}
}

// AddState registers a named UI state with the given property overrides.
// Registering "hover" binds it to mouseenter/mouseleave; "active" to
// mousedown/mouseup. Every other name (including "default") is inert until
// activated programmatically. Re-registering a name replaces its overrides
// and rebinds its listeners.
func (it *Item) AddState(name string, props ItemChanges) {
	if old, ok := it.states[name]; ok && old.cleanup != nil {
		old.cleanup()
	}

	// Deep-copy the overrides so later mutation of the caller's struct (or
	// of the pointed-to values) cannot alias into the stored state.
	var stored ItemChanges
	if err := copier.CopyWithOption(&stored, &props, copier.Option{DeepCopy: true}); err != nil {
		panic("mapscene: deep copy of state properties failed: " + err.Error())
	}

	st := &uiState{props: stored}
	switch name {
	case stateHover:
		enter := it.On(EventMouseEnter, func(EventContext) { it.ActivateState(stateHover) })
		leave := it.On(EventMouseLeave, func(EventContext) { it.DeactivateState(stateHover) })
		st.cleanup = func() {
			enter.Remove()
			leave.Remove()
		}
	case stateActive:
		down := it.On(EventMouseDown, func(EventContext) { it.ActivateState(stateActive) })
		up := it.On(EventMouseUp, func(EventContext) { it.DeactivateState(stateActive) })
		st.cleanup = func() {
			down.Remove()
			up.Remove()
		}
	}
	it.states[name] = st
}

// RemoveState deactivates and unregisters a named UI state, detaching any
// auto-bound listeners. The "default" state cannot be removed; its overrides
// are cleared instead.
func (it *Item) RemoveState(name string) {
	st, ok := it.states[name]
	if !ok {
		return
	}
	it.DeactivateState(name)
	if st.cleanup != nil {
		st.cleanup()
	}
	if name == stateDefault {
		it.states[stateDefault] = &uiState{}
		return
	}
	delete(it.states, name)
}

// ActivateState pushes a registered state onto the active list and reapplies
// the merged property set. Activating an already-active state is a no-op, so
// side effects never run twice. Unregistered names are ignored.
func (it *Item) ActivateState(name string) {
	if _, ok := it.states[name]; !ok {
		return
	}
	for _, active := range it.activeStates {
		if active == name {
			return
		}
	}
	it.activeStates = append(it.activeStates, name)
	it.reapplyStates()
}

// DeactivateState removes a state from the active list (in any position,
// not just the top) and reapplies the merged set of the remaining states.
// Releasing "active" while "hover" is still held therefore restores the
// hover values rather than jumping to default. The base "default" state
// cannot be deactivated.
func (it *Item) DeactivateState(name string) {
	if name == stateDefault {
		return
	}
	for i, active := range it.activeStates {
		if active == name {
			it.activeStates = append(it.activeStates[:i], it.activeStates[i+1:]...)
			it.reapplyStates()
			return
		}
	}
}

// ActiveStates returns the ordered list of currently active state names.
// The returned slice MUST NOT be mutated.
func (it *Item) ActiveStates() []string {
	return it.activeStates
}

// reapplyStates folds every active state's overrides in list order (later
// entries win) and dispatches the merged set through the typed setters,
// followed by one repaint request.
func (it *Item) reapplyStates() {
	var merged ItemChanges
	for _, name := range it.activeStates {
		if st, ok := it.states[name]; ok {
			mergeChanges(&merged, st.props)
		}
	}
	applyChanges(it, merged)
	it.requestRepaint()
}
