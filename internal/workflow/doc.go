// Package workflow runs the question-answering state machine.
//
// A run moves through eight stages: intent analysis, document retrieval,
// answer synthesis, validation, follow-up generation, approval, storage and
// fact extraction. After validation the engine may loop back to intent or
// retrieval, at most MaxLoops times. Every stage is isolated: an error or
// panic is recorded as a diagnostic, the stage's safe defaults are applied
// and the run continues along the next edge.
package workflow
