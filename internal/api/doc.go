// Package api exposes the job service over HTTP.
//
// Routes:
//
//	GET    /                  static submission page
//	POST   /generate          enqueue text, answer 201 {"job_id"}
//	GET    /job/{id}          download {id}.wav once it exists
//	DELETE /job/{id}          remove the artifact
//	GET    /job/{id}/status   pending, processing, failed or done
//	GET    /health            worker state and queue depth
//
// Handlers never wait for synthesis.
package api
