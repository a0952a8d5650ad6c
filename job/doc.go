// Package job holds job definitions and the registry that loads and resolves them.
//
// A job names one outbound HTTP request (method, URL, which payload keys go to the
// query string and which to the JSON body) plus optional onStart, onSuccess and
// onFail callbacks, each of which names another job. Definitions are loaded once from
// YAML documents shaped like:
//
//	jobs:
//	  order-created:
//	    request:
//	      method: POST
//	      url: http://orders.internal/hooks
//	      query_url_from: [tenant]
//	      json_body_from: [order_id, total]
//	      required: [tenant, order_id]
//	    log_suffix: orders
//	    success:
//	      status_code: 202
//	    on_fail: order-created-failed
//
// Registry.Resolve turns a definition into a tree of Resolved jobs with every
// callback materialized. Resolution runs per message and rejects callback cycles.
package job
