// Package nlbridge compiles an algebraic description of a nonlinear
// optimization problem into a solver-facing evaluator and drives the solve
// lifecycle against a pluggable solver back-end.
//
// A model is built incrementally with the model package (variables with
// bounds, constraints over expression graphs, one objective), frozen into an
// evaluator.Evaluator at solve time, and handed to a solve.Solver adapter by
// the solve.Orchestrator. The solve/slsqp package bundles an adapter over a
// pure-Go SLSQP implementation.
package nlbridge
