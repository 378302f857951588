// Package editor wires the flow editing components into one session.
//
// A Session owns the graph of the open flow and keeps the canvas
// projection, the focused parameter panel and the run orchestrator in step
// with it:
//
//	s, err := editor.New(editor.Deps{
//		Catalogue: cat,
//		Store:     client,
//		Engine:    client,
//		Surface:   surface,
//	})
//	node, err := s.DropInstruction(ctx, "read_excel", port.Point{X: 40, Y: 40})
//	form, err := s.Focus(node.ID)
//	err = s.Edit("file", files)
//	id, err := s.Save(ctx)
//	started, err := s.Run(ctx)
//
// Run validates every node on the client first and refuses with
// errors.ErrClientValidation before anything reaches the engine. Load
// replaces the graph in one step, so the canvas redraws once.
package editor
