// Package session drives a single real-time audio/video call.
//
// A Controller owns one call session from Start to teardown. It validates
// configuration, asks for capture permissions, creates a media engine,
// joins the channel and then translates the engine's event stream into a
// Snapshot that a view can render: connection state, remote participants,
// local media flags, statistics and a coarse quality level.
//
// The connection state machine is:
//
//	Idle -> Initializing -> PermissionsPending -> Joining -> Joined -> Leaving -> Left
//
// with Failed reachable from Initializing, PermissionsPending and Joining.
// Joined moves straight to Left when the server removes the local client,
// and Joining settles in Left when End was requested before the join
// completed.
//
// Engine events never call into the controller synchronously. The engine
// handler appends each event to an unbounded queue that one goroutine
// drains through Dispatch, so commands issued from inside engine callbacks
// cannot deadlock and events are applied in the order the engine produced
// them.
//
// Example:
//
//	ctrl, err := session.NewController(session.ControllerConfig{
//	    AppID:         appID,
//	    EngineFactory: engine.LoopbackFactory(engine.DefaultLoopbackOptions()),
//	    Callbacks: session.Callbacks{
//	        OnEnded: func(s session.Snapshot) { log.Println("call ended", s.State) },
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer ctrl.Close()
//
//	if err := ctrl.Start(ctx, "room-42", "", 0); err != nil {
//	    return err
//	}
package session
