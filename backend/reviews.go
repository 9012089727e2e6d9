package backend

import (
	"github.com/julienschmidt/httprouter"
	"github.com/wansing/pressroom/core"
)

// reviewJob adds the "pending since" time to unfinished jobs.
type reviewJob struct {
	core.ReviewJob
	PendingSince *int64 `json:"pendingSince,omitempty"` // unix seconds
}

func reviews(r *request, params httprouter.Params) error {

	statuses, err := core.ParseReviewStatuses(r.req.URL.Query().Get("status"))
	if err != nil {
		return err
	}

	jobs, err := r.DB.MyReviewJobs(r.req.Context(), r.Identity, statuses)
	if err != nil {
		return err
	}

	var result = make([]reviewJob, len(jobs))
	for i, job := range jobs {
		result[i].ReviewJob = job
		if !job.Resolved() {
			var since = job.CreatedAt.Unix()
			result[i].PendingSince = &since
		}
	}
	return r.ok(result)
}

type resolveData struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

func resolve(r *request, params httprouter.Params) error {

	id, ok := parseID(params.ByName("id"))
	if !ok {
		return core.ErrReviewJobNotFound
	}

	var data resolveData
	if err := r.decode(&data); err != nil {
		return err
	}

	outcome, err := core.ParseReviewStatus(data.Status)
	if err != nil {
		return err
	}

	job, err := r.DB.ResolveReview(r.req.Context(), r.Identity, id, outcome, data.Result)
	if err != nil {
		return err
	}
	return r.ok(job)
}

type assignData struct {
	Reviewer int `json:"reviewer"`
}

func assign(r *request, params httprouter.Params) error {

	id, ok := parseID(params.ByName("id"))
	if !ok {
		return core.ErrReviewJobNotFound
	}

	var data assignData
	if err := r.decode(&data); err != nil {
		return err
	}

	job, err := r.DB.Reassign(r.req.Context(), r.Identity, id, data.Reviewer)
	if err != nil {
		return err
	}
	return r.ok(job)
}
