// Package jobs persists conversion jobs on the local filesystem. Each job owns
// a directory under <data_dir>/jobs/<id> holding its metadata record and
// artifacts; metadata writes go through a temp-file rename so readers never
// observe a partial record. Status transitions are validated and monotonic;
// the one shortcut is pending -> failed, taken when a daemon restart or
// shutdown interrupts a job before a worker ran it. Such records carry the
// "interrupted" failure kind so they are distinguishable from worker failures.
package jobs
