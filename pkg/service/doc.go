/*
Package service implements the application services over the domain
aggregates.

Each service follows the same shape: validate inputs and cross-aggregate
references, load or construct the aggregate, invoke its operations,
persist through the cached repository, then publish the recorded domain
events. Events never reach the bus before the save succeeds.
*/
package service
