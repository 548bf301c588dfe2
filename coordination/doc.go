// Package coordination contrasts two ways of spreading tasks over workers.
//
// A Coordinator allocates centrally: it shows the model a summary of every
// worker's load and asks which one should take the task, falling back to the
// least loaded worker when the answer names nobody usable.
//
// A Market allocates without a coordinator: each task is announced on the
// broker's "tasks" topic, every worker decides on its own (concurrently)
// whether to bid, and the first bidder in registration order wins.
//
// Neither strategy lets a worker go over capacity.
package coordination
